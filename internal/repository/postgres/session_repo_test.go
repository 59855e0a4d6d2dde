package postgres

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"

	"github.com/fleetsapp/fleets/internal/convert"
	"github.com/fleetsapp/fleets/internal/errs"
	"github.com/fleetsapp/fleets/internal/model"
)

func sampleTokens() model.Tokens {
	return model.Tokens{
		AccessToken:  "access",
		RefreshToken: "refresh",
		ExpiresAt:    time.Now().UTC().Add(time.Hour).Truncate(time.Second),
		User: model.UserInfo{
			ID:    uuid.Must(uuid.NewV4()),
			Email: "42@tg.fleets.local",
		},
	}
}

func TestSessionRepo_Upsert(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewSessionRepo(db)
	s := model.AuthSession{ID: "b5c7a8d2e1f3490aa1b2c3d4e5f60718", Tokens: sampleTokens()}

	payload, err := json.Marshal(convert.ToWireTokens(s.Tokens))
	require.NoError(t, err)

	mock.ExpectExec(`INSERT INTO auth_sessions`).
		WithArgs(s.ID, payload).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	require.NoError(t, r.Upsert(context.Background(), s))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepo_Claim_DeletesAndReturnsTokens(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewSessionRepo(db)
	tokens := sampleTokens()
	payload, err := json.Marshal(convert.ToWireTokens(tokens))
	require.NoError(t, err)

	mock.ExpectQuery(`DELETE FROM auth_sessions WHERE id=\$1 RETURNING tokens`).
		WithArgs("sid").
		WillReturnRows(pgxmock.NewRows([]string{"tokens"}).AddRow(payload))

	got, err := r.Claim(context.Background(), "sid")
	require.NoError(t, err)
	require.Equal(t, tokens.AccessToken, got.AccessToken)
	require.Equal(t, tokens.User.ID, got.User.ID)
}

func TestSessionRepo_Claim_AbsentReadsAsPending(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewSessionRepo(db)

	// never fulfilled, or already claimed once: same answer either way
	mock.ExpectQuery(`DELETE FROM auth_sessions WHERE id=\$1 RETURNING tokens`).
		WithArgs("sid").
		WillReturnError(pgx.ErrNoRows)

	_, err := r.Claim(context.Background(), "sid")
	require.ErrorIs(t, err, errs.ErrSessionPending)
}
