package property

import (
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/crodas/tuicha/adapter/data"
	"github.com/crodas/tuicha/domain"
)

type M = data.M

type A = []any

type Address struct {
	City string
	Zip  int
}

type Base struct {
	Created time.Time
}

type user struct {
	*Base
	Name    string
	Age     int
	Score   float64
	Tags    []string
	Home    Address
	Work    *Address
	Meta    map[string]int
	secret  string
	rejects bool
}

func (u *user) GetField(name string) (any, bool) {
	if name == "secret" {
		return u.secret, true
	}
	return nil, false
}

func (u *user) SetField(name string, value any) bool {
	if name != "secret" || u.rejects {
		return false
	}
	u.secret, _ = value.(string)
	return true
}

func descriptor(name string) *Descriptor {
	f, ok := reflect.TypeFor[user]().FieldByName(name)
	if !ok {
		panic(name)
	}
	return &Descriptor{Class: "user", StorageName: name, FieldName: name, Index: f.Index, Type: f.Type}
}

type PropertyTestSuite struct {
	suite.Suite
}

func (s *PropertyTestSuite) TestValueAndSetValue() {
	u := &user{Name: "ana"}
	d := descriptor("Name")

	v, ok := d.Value(u)
	s.True(ok)
	s.Equal("ana", v)

	s.Require().NoError(d.SetValue(u, "bob"))
	s.Equal("bob", u.Name)

	_, ok = d.Value((*user)(nil))
	s.False(ok)
}

func (s *PropertyTestSuite) TestConversions() {
	u := &user{}
	s.Require().NoError(descriptor("Age").SetValue(u, int64(30)))
	s.Require().NoError(descriptor("Score").SetValue(u, 7))
	s.Require().NoError(descriptor("Tags").SetValue(u, A{"a", "b"}))
	s.Require().NoError(descriptor("Home").SetValue(u, M{"City": "Asunción", "Zip": 1}))
	s.Require().NoError(descriptor("Work").SetValue(u, &Address{City: "Luque"}))
	s.Require().NoError(descriptor("Meta").SetValue(u, M{"a": 1.0}))

	s.Equal(30, u.Age)
	s.Equal(7.0, u.Score)
	s.Equal([]string{"a", "b"}, u.Tags)
	s.Equal(Address{City: "Asunción", Zip: 1}, u.Home)
	s.Equal(&Address{City: "Luque"}, u.Work)
	s.Equal(map[string]int{"a": 1}, u.Meta)

	s.Require().NoError(descriptor("Tags").SetValue(u, nil))
	s.Nil(u.Tags)

	err := descriptor("Age").SetValue(u, "thirty")
	s.ErrorAs(err, &ErrNotAssignable{})
	s.ErrorAs(err, &ErrIncompatible{})
}

func (s *PropertyTestSuite) TestPromotedField() {
	u := &user{}
	d := descriptor("Created")

	_, ok := d.Value(u)
	s.False(ok)

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s.Require().NoError(d.SetValue(u, primitive.NewDateTimeFromTime(now)))
	s.Require().NotNil(u.Base)
	s.Equal(now, u.Created)
}

func (s *PropertyTestSuite) TestPrivate() {
	u := &user{secret: "x"}
	d := &Descriptor{FieldName: "secret", Visibility: Private}

	v, ok := d.Value(u)
	s.True(ok)
	s.Equal("x", v)

	s.Require().NoError(d.SetValue(u, "y"))
	s.Equal("y", u.secret)

	u.rejects = true
	s.ErrorAs(d.SetValue(u, "z"), &ErrNotAssignable{})

	_, ok = d.Value(&Address{})
	s.False(ok)
}

func (s *PropertyTestSuite) TestValidateRequired() {
	d := descriptor("Name")
	s.NoError(d.Validate(""))

	d.Required = true
	err := d.Validate("")
	var verr domain.ValidationError
	s.Require().ErrorAs(err, &verr)
	s.Equal(RuleRequired, verr.Rule)
	s.Equal("Name", verr.Property)

	s.Error(d.Validate(primitive.NewDateTimeFromTime(time.Time{})))
	s.Error(d.Validate(A{}))
	s.NoError(d.Validate(0))
	s.NoError(d.Validate("x"))
}

func (s *PropertyTestSuite) TestValidateRules() {
	d := descriptor("Name")
	var err error
	d.Validators, err = ParseRules("len:2:5|regex:^[a-z]+$")
	s.Require().NoError(err)

	s.NoError(d.Validate("abc"))
	s.NoError(d.Validate(""))

	var verr domain.ValidationError
	s.Require().ErrorAs(d.Validate("a"), &verr)
	s.Equal("len", verr.Rule)
	s.Require().ErrorAs(d.Validate("ABC"), &verr)
	s.Equal("regex", verr.Rule)

	_, err = ParseRules("email|nope")
	s.ErrorAs(err, &ErrUnknownValidator{})
}

func (s *PropertyTestSuite) TestBuiltinValidators() {
	check := func(rule string, value any) bool {
		vs, err := ParseRules(rule)
		s.Require().NoError(err)
		s.Require().Len(vs, 1)
		return vs[0].Func(value, vs[0].Args...)
	}

	s.True(check("email", "a@b.com"))
	s.False(check("is_email", "Ana <a@b.com>"))
	s.False(check("email", 1))
	s.True(check("integer", "42"))
	s.True(check("integer", 4.0))
	s.False(check("is_integer", 4.5))
	s.False(check("integer", "x"))
	s.True(check("between:1:10", 10))
	s.False(check("between:1:10", 11))
	s.False(check("between:1", 1))
	s.True(check("min:3", "3"))
	s.False(check("min:3", true))
	s.True(check("max:3", 2.5))
	s.True(check("regex:^a:b$", "a:b"))
	s.True(check("url", "https://example.com/x"))
	s.False(check("url", "example.com"))
	s.True(check("uuid", "f47ac10b-58cc-4372-a567-0e02b2c3d479"))
	s.False(check("uuid", "nope"))
	s.True(check("in:red:green", "green"))
	s.False(check("in:red:green", "blue"))
	s.True(check("len:2", A{1, 2, 3}))
	s.False(check("len:1:2", M{"a": 1, "b": 2, "c": 3}))
	s.True(check("len:1:1", map[string]int{"a": 1}))
}

func (s *PropertyTestSuite) TestRegister() {
	Register("even", func(value any, _ ...string) bool {
		n, ok := value.(int)
		return ok && n%2 == 0
	})
	vs, err := ParseRules("even")
	s.Require().NoError(err)
	d := &Descriptor{FieldName: "n", Validators: vs}
	s.NoError(d.Validate(2))
	s.Error(d.Validate(3))
}

func TestPropertyTestSuite(t *testing.T) {
	suite.Run(t, new(PropertyTestSuite))
}
