// Package projector contains the default [domain.Projector] implementation.
package projector

import (
	"errors"

	"github.com/crodas/tuicha/adapter/data"
	"github.com/crodas/tuicha/adapter/fieldnavigator"
	"github.com/crodas/tuicha/domain"
)

var (
	// ErrMixOmitType is returned when user provides a projection object
	// with mixed "omit" and "show" operators.
	ErrMixOmitType = errors.New("can't both keep and omit fields except for _id")
)

// Projector implements [domain.Projector].
type Projector struct{}

// NewProjector returns a new implementation of [domain.Projector].
func NewProjector() domain.Projector {
	return &Projector{}
}

// Project implements [domain.Projector].
func (p *Projector) Project(docs []domain.Document, proj map[string]int) ([]domain.Document, error) {
	if len(proj) == 0 {
		return docs, nil
	}

	id, idMentioned := proj[domain.IDField]
	keepID := !idMentioned || id != 0

	fields := make([]string, 0, len(proj))
	keep, omit := 0, 0
	for field, value := range proj {
		if field == domain.IDField {
			continue
		}
		if value != 0 {
			keep++
		} else {
			omit++
		}
		fields = append(fields, field)
	}
	if keep > 0 && omit > 0 {
		return nil, ErrMixOmitType
	}

	// {_id: 1} alone selects only the identity
	positive := keep > 0 || (omit == 0 && keepID)

	res := make([]domain.Document, len(docs))
	for n, d := range docs {
		doc, _ := data.AsDocument(d)
		var projected data.M
		if positive {
			projected = p.positive(doc, fields)
		} else {
			projected = data.CopyDoc(doc)
			for _, f := range fields {
				if err := fieldnavigator.Unset(projected, f); err != nil {
					return nil, err
				}
			}
		}
		if keepID {
			if idv, ok := doc[domain.IDField]; ok {
				projected[domain.IDField] = idv
			}
		} else {
			delete(projected, domain.IDField)
		}
		res[n] = projected
	}

	return res, nil
}

func (p *Projector) positive(doc data.M, fields []string) data.M {
	res := data.M{}
	for _, f := range fields {
		value, ok := fieldnavigator.Lookup(doc, f)
		if !ok {
			continue
		}
		_ = fieldnavigator.Set(res, f, data.Copy(value))
	}
	return res
}
