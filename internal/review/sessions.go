package review

import (
	"context"
	"errors"
	"log/slog"

	"github.com/starford/ecglabel/internal/apperr"
	"github.com/starford/ecglabel/internal/models"
	"github.com/starford/ecglabel/internal/session"
)

// Navigation actions accepted by Move.
const (
	MovePrevious = "previous"
	MoveNext     = "next"
	MoveRefresh  = "refresh"
)

// View is what a reviewer sees for the current document of a session.
type View struct {
	ID        string                   `json:"id"`
	Annotator string                   `json:"annotator"`
	Empty     bool                     `json:"empty"`
	Current   string                   `json:"current,omitempty"`
	Position  session.Position         `json:"position"`
	Label     string                   `json:"label,omitempty"`
	Record    *models.AnnotationRecord `json:"record"`
	Form      models.Form              `json:"form"`
}

// StartSession opens a session over the current document list.
func (s *Service) StartSession(ctx context.Context, annotator string) (*View, error) {
	keys, err := s.DocumentKeys(ctx)
	if err != nil {
		return nil, err
	}
	st := session.New(keys, annotator)
	id := s.sessions.Create(st)
	return s.view(ctx, id, st)
}

// Session returns the view of an open session.
func (s *Service) Session(ctx context.Context, id string) (*View, error) {
	st, err := s.sessions.Get(id)
	if err != nil {
		return nil, err
	}
	return s.view(ctx, id, st)
}

// Move applies a navigation action. Refresh re-lists the documents first.
func (s *Service) Move(ctx context.Context, id, action string) (*View, error) {
	var fn func(session.State) (session.State, error)
	switch action {
	case MovePrevious:
		fn = func(st session.State) (session.State, error) { return session.Previous(st), nil }
	case MoveNext:
		fn = func(st session.State) (session.State, error) { return session.Next(st), nil }
	case MoveRefresh:
		keys, err := s.DocumentKeys(ctx)
		if err != nil {
			return nil, err
		}
		fn = func(st session.State) (session.State, error) { return session.Refresh(st, keys), nil }
	default:
		return nil, apperr.Validation(errors.New("unknown action " + action))
	}
	st, err := s.sessions.Apply(id, fn)
	if err != nil {
		return nil, err
	}
	return s.view(ctx, id, st)
}

// Jump moves the session cursor to key.
func (s *Service) Jump(ctx context.Context, id, key string) (*View, error) {
	st, err := s.sessions.Apply(id, func(st session.State) (session.State, error) {
		return session.JumpTo(st, key)
	})
	if err != nil {
		return nil, err
	}
	return s.view(ctx, id, st)
}

// CloseSession forgets a session.
func (s *Service) CloseSession(id string) {
	s.sessions.Delete(id)
}

// view loads the record of the current document. A malformed record does not
// block navigation: the view carries no record and an empty form.
func (s *Service) view(ctx context.Context, id string, st session.State) (*View, error) {
	v := &View{
		ID:        id,
		Annotator: st.Annotator,
		Position:  session.PositionOf(st),
		Form:      models.FormFromRecord(nil),
	}
	key, ok := session.Current(st)
	if !ok {
		v.Empty = true
		return v, nil
	}
	v.Current = key
	v.Label = v.Position.String()

	rec, err := s.annotations.Load(ctx, key)
	switch {
	case errors.Is(err, apperr.ErrValidationFailed):
		s.logger.Warn("session: unreadable record",
			slog.String("key", key),
			slog.String("error", err.Error()))
	case err != nil:
		return nil, err
	default:
		v.Record = rec
	}
	v.Form = models.FormFromRecord(v.Record)
	return v, nil
}
