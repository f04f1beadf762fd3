package auth

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type ChangeUsernameMessage struct {
	UserID     string `json:"user_id"`
	Username   string `json:"username"`
	OnResponse func(*ChangeUsernameResponse)
}

func (e ChangeUsernameMessage) Type() string { return "user.change_username" }

type ChangeUsernameResponse struct {
	Username string `json:"username"`
	Token    string `json:"token"`
}

// ChangeUsernameHandler persists a new username and replaces the caller's
// token. The username travels inside token claims, so the old token keeps
// advertising stale data until a fresh one lands in the session slot. The
// overwrite retires every previously issued token for the subject.
type ChangeUsernameHandler struct {
	repo     RepositoryManager
	identity Authenticator
}

func (h *ChangeUsernameHandler) Execute(ctx context.Context, event ChangeUsernameMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during username change",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *ChangeUsernameHandler) execute(ctx context.Context, event ChangeUsernameMessage) error {
	id, err := uuid.Parse(event.UserID)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid user id").
			WithMetadata(map[string]any{"user_id": event.UserID})
	}

	if event.Username == "" {
		return ErrNoEmptyString
	}

	updated := &User{}
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	err = h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := h.repo.Users().ChangeUsernameTx(ctx, tx, id, event.Username); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryConflict, "could not change username")
		}

		// read back the full record, the update only carries the new name
		record, err := h.repo.Users().GetByIdentifierTx(ctx, tx, id.String())
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "could not load user after username change")
		}

		updated = record
		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}

		return goerrors.Wrap(err, goerrors.CategoryInternal, "username change transaction failed")
	}

	// re-issue only after the write commits so the registered token never
	// carries a username the store rolled back
	token, err := h.identity.Reissue(ctx, identityFromUser(updated))
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to re-issue token after username change")
	}

	if event.OnResponse != nil {
		event.OnResponse(&ChangeUsernameResponse{
			Username: updated.Username,
			Token:    token,
		})
	}

	return nil
}
