package tuicha_test

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/crodas/tuicha"
)

type User struct {
	ID    primitive.ObjectID
	Name  string   `tuicha:"name,required"`
	Email string   `tuicha:"email,unique,validate=email"`
	Age   int      `tuicha:"age"`
	Tags  []string `tuicha:"tags"`
}

func (u *User) ScopeAdults(f *tuicha.Filter) {
	f.Gte("age", 18)
}

type Post struct {
	ID     primitive.ObjectID
	Title  string            `tuicha:"title,index"`
	Author *tuicha.Reference `tuicha:"author,cache=name"`
	tuicha.Timestamps
}

func ExampleNew() {
	ctx := context.Background()
	db := tuicha.New(tuicha.WithConnection(tuicha.DefaultConnection, tuicha.Memory(), "app"))

	for _, u := range []*User{
		{Name: "Ana", Email: "ana@example.com", Age: 31},
		{Name: "Bea", Email: "bea@example.com", Age: 12},
		{Name: "Cid", Email: "cid@example.com", Age: 45},
	} {
		if err := db.Save(ctx, u); err != nil {
			panic(err)
		}
	}

	q, _ := db.Find(&User{})
	users, err := tuicha.All[*User](ctx, q.Scope("adults").Sort("name", 1))
	if err != nil {
		panic(err)
	}
	for _, u := range users {
		fmt.Println(u.Name, u.Age)
	}
	// Output:
	// Ana 31
	// Cid 45
}

func ExampleODM_Save() {
	ctx := context.Background()
	db := tuicha.New(tuicha.WithConnection(tuicha.DefaultConnection, tuicha.Memory(), "app"))

	u := &User{Name: "Ana", Email: "ana@example.com"}
	_ = db.Save(ctx, u)

	// Only the changed fields are written.
	u.Name = "Ana María"
	u.Tags = append(u.Tags, "admin")
	_ = db.Save(ctx, u)

	q, _ := db.Find(&User{}, tuicha.Where("name", "Ana María"))
	found, ok, _ := tuicha.First[*User](ctx, q)
	fmt.Println(ok, found.Tags)

	err := db.Save(ctx, &User{Email: "nobody"})
	var invalid tuicha.ValidationError
	fmt.Println(errors.As(err, &invalid))
	// Output:
	// true [admin]
	// true
}

func ExampleDeref() {
	ctx := context.Background()
	db := tuicha.New(tuicha.WithConnection(tuicha.DefaultConnection, tuicha.Memory(), "app"))

	author := &User{Name: "Ana", Email: "ana@example.com"}
	// The author is saved along with the post.
	_ = db.Save(ctx, &Post{Title: "Hello", Author: tuicha.Ref(author)})

	q, _ := db.Find(&Post{})
	post, _, _ := tuicha.First[*Post](ctx, q)

	// Cached fields are read without loading the author.
	name, _ := post.Author.Get(ctx, "name")
	fmt.Println(name, post.Author.IsResolved())

	loaded, _ := tuicha.Deref[*User](ctx, post.Author)
	fmt.Println(loaded.Email)
	// Output:
	// Ana false
	// ana@example.com
}

func ExampleODM_Update() {
	ctx := context.Background()
	db := tuicha.New(tuicha.WithConnection(tuicha.DefaultConnection, tuicha.Memory(), "app"))
	for _, name := range []string{"a", "b", "c"} {
		_ = db.Save(ctx, &User{Name: name, Email: name + "@example.com", Age: 20})
	}

	u, _ := db.Update(&User{}, tuicha.Where("name", "in", []any{"a", "b"}))
	res, _ := u.Inc("age", 1).Push("tags", "old").Execute(ctx)
	fmt.Println(res.MatchedCount, res.ModifiedCount)

	n, _ := db.Count(ctx, &User{}, tuicha.Where("age", ">", 20))
	fmt.Println(n)
	// Output:
	// 2 2
	// 2
}
