package identity

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runStoreContract exercises the behavior every Store adapter must share.
func runStoreContract(t *testing.T, newStore func(t *testing.T) Store) {
	t.Helper()

	t.Run("create and lookup", func(t *testing.T) {
		st := newStore(t)
		ctx := context.Background()
		now := time.UnixMilli(1_700_000_000_000).UTC()

		u, err := st.CreateUser(ctx, CreateUserInput{
			Name:             " ann ",
			Email:            "Ann@Example.com",
			PasswordHash:     "hash",
			Salt:             "salt",
			VerificationCode: "ABC1234",
			Now:              now,
		})
		require.NoError(t, err)
		assert.NotZero(t, u.ID)
		assert.Equal(t, "ann", u.Name)
		assert.Equal(t, "ann@example.com", u.Email)
		assert.Empty(t, u.Tokens)
		require.NotNil(t, u.VerificationCode)
		assert.Equal(t, "ABC1234", *u.VerificationCode)

		byEmail, err := st.GetUserByEmail(ctx, "ANN@example.com")
		require.NoError(t, err)
		assert.Equal(t, u.ID, byEmail.ID)
		assert.Equal(t, now, byEmail.Registered)
		assert.Equal(t, now, byEmail.LastOnline)

		byID, err := st.GetUserByID(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, "hash", byID.PasswordHash)
		assert.Equal(t, "salt", byID.Salt)
	})

	t.Run("exists has no side effects", func(t *testing.T) {
		st := newStore(t)
		ctx := context.Background()

		ok, err := st.Exists(ctx, FieldName, "bob")
		require.NoError(t, err)
		assert.False(t, ok)

		_, err = st.CreateUser(ctx, CreateUserInput{Name: "bob", Email: "bob@example.com", PasswordHash: "h", Salt: "s"})
		require.NoError(t, err)

		ok, err = st.Exists(ctx, FieldName, "bob")
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = st.Exists(ctx, FieldEmail, "BOB@example.com")
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = st.Exists(ctx, FieldName, "Bob")
		require.NoError(t, err)
		assert.False(t, ok, "names are case-sensitive")

		_, err = st.Exists(ctx, Field("password"), "x")
		assert.True(t, IsInvalidInput(err))
	})

	t.Run("duplicate name or email conflicts", func(t *testing.T) {
		st := newStore(t)
		ctx := context.Background()

		_, err := st.CreateUser(ctx, CreateUserInput{Name: "cat", Email: "cat@example.com", PasswordHash: "h", Salt: "s"})
		require.NoError(t, err)

		_, err = st.CreateUser(ctx, CreateUserInput{Name: "cat2", Email: "cat@example.com", PasswordHash: "h", Salt: "s"})
		field, ok := ConflictField(err)
		require.True(t, ok, "err=%v", err)
		assert.Equal(t, "email", field)

		_, err = st.CreateUser(ctx, CreateUserInput{Name: "cat", Email: "other@example.com", PasswordHash: "h", Salt: "s"})
		field, ok = ConflictField(err)
		require.True(t, ok, "err=%v", err)
		assert.Equal(t, "name", field)
		assert.True(t, IsConflict(err))
		assert.ErrorIs(t, err, ErrConflict)
	})

	t.Run("missing user", func(t *testing.T) {
		st := newStore(t)
		ctx := context.Background()

		_, err := st.GetUserByEmail(ctx, "nobody@example.com")
		assert.True(t, IsNotFound(err))

		_, err = st.GetUserByID(ctx, 999_999)
		assert.True(t, IsNotFound(err))

		err = st.UpdateTokens(ctx, 999_999, func(cur []string) ([]string, error) { return cur, nil })
		assert.True(t, IsNotFound(err))

		assert.True(t, IsNotFound(st.TouchLastOnline(ctx, 999_999, time.Now())))
		assert.True(t, IsNotFound(st.SetVerificationCode(ctx, 999_999, nil)))
	})

	t.Run("invalid create input", func(t *testing.T) {
		st := newStore(t)
		_, err := st.CreateUser(context.Background(), CreateUserInput{Name: "  ", Email: "x@example.com", PasswordHash: "h", Salt: "s"})
		assert.True(t, IsInvalidInput(err))
	})

	t.Run("update tokens", func(t *testing.T) {
		st := newStore(t)
		ctx := context.Background()

		u, err := st.CreateUser(ctx, CreateUserInput{Name: "dan", Email: "dan@example.com", PasswordHash: "h", Salt: "s"})
		require.NoError(t, err)

		err = st.UpdateTokens(ctx, u.ID, func(cur []string) ([]string, error) {
			return append(cur, "t1", "t2"), nil
		})
		require.NoError(t, err)

		abort := errors.New("abort")
		err = st.UpdateTokens(ctx, u.ID, func(cur []string) ([]string, error) {
			return nil, abort
		})
		require.ErrorIs(t, err, abort)

		got, err := st.GetUserByID(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, []string{"t1", "t2"}, got.Tokens)

		require.NoError(t, st.UpdateTokens(ctx, u.ID, func([]string) ([]string, error) { return nil, nil }))
		got, err = st.GetUserByID(ctx, u.ID)
		require.NoError(t, err)
		assert.Empty(t, got.Tokens)
	})

	t.Run("concurrent token updates are serialized", func(t *testing.T) {
		st := newStore(t)
		ctx := context.Background()

		u, err := st.CreateUser(ctx, CreateUserInput{Name: "eve", Email: "eve@example.com", PasswordHash: "h", Salt: "s"})
		require.NoError(t, err)

		const n = 16
		var wg sync.WaitGroup
		errs := make(chan error, n)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				errs <- st.UpdateTokens(ctx, u.ID, func(cur []string) ([]string, error) {
					return append(cur, fmt.Sprintf("t%02d", i)), nil
				})
			}(i)
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		got, err := st.GetUserByID(ctx, u.ID)
		require.NoError(t, err)
		assert.Len(t, got.Tokens, n, "no lost updates")
	})

	t.Run("last online and verification code", func(t *testing.T) {
		st := newStore(t)
		ctx := context.Background()

		u, err := st.CreateUser(ctx, CreateUserInput{Name: "fay", Email: "fay@example.com", PasswordHash: "h", Salt: "s", VerificationCode: "AAAAAAA"})
		require.NoError(t, err)

		later := time.UnixMilli(1_800_000_000_000).UTC()
		require.NoError(t, st.TouchLastOnline(ctx, u.ID, later))

		code := "BBBBBBB"
		require.NoError(t, st.SetVerificationCode(ctx, u.ID, &code))

		got, err := st.GetUserByID(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, later, got.LastOnline)
		require.NotNil(t, got.VerificationCode)
		assert.Equal(t, "BBBBBBB", *got.VerificationCode)

		require.NoError(t, st.SetVerificationCode(ctx, u.ID, nil))
		got, err = st.GetUserByID(ctx, u.ID)
		require.NoError(t, err)
		assert.Nil(t, got.VerificationCode)
	})
}
