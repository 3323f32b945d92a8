package user

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/avirag26/scholaro-api/internal/common"
)

type fakeStore struct {
	profiles map[uuid.UUID]Profile
	gets     int
}

func (f *fakeStore) GetProfile(_ context.Context, id uuid.UUID) (Profile, error) {
	f.gets++
	p, ok := f.profiles[id]
	if !ok {
		return Profile{}, ErrUserNotFound
	}
	return p, nil
}

func newService(t *testing.T, store *fakeStore) *Service {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return &Service{Store: store, R: rdb, TTL: time.Minute}
}

func TestProfileIsCached(t *testing.T) {
	id := uuid.New()
	store := &fakeStore{profiles: map[uuid.UUID]Profile{id: {ID: id, Name: "Meera"}}}
	svc := newService(t, store)
	ctx := context.Background()

	p, err := svc.Profile(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "Meera", p.Name)
	require.NotNil(t, p.Enrolled)

	_, err = svc.Profile(ctx, id)
	require.NoError(t, err)
	require.Equal(t, 1, store.gets)
}

func TestRefreshReplacesCachedProfile(t *testing.T) {
	id := uuid.New()
	course := uuid.New()
	store := &fakeStore{profiles: map[uuid.UUID]Profile{id: {ID: id}}}
	svc := newService(t, store)
	ctx := context.Background()

	p, err := svc.Profile(ctx, id)
	require.NoError(t, err)
	require.False(t, p.Owns(course))

	store.profiles[id] = Profile{ID: id, Enrolled: []uuid.UUID{course}}
	require.NoError(t, svc.Refresh(ctx, id))

	p, err = svc.Profile(ctx, id)
	require.NoError(t, err)
	require.True(t, p.Owns(course))
}

func TestMeHandler(t *testing.T) {
	id := uuid.New()
	h := &Handler{Svc: newService(t, &fakeStore{profiles: map[uuid.UUID]Profile{id: {ID: id, Name: "Meera"}}})}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/users/me", nil)
	req = req.WithContext(common.WithUserID(req.Context(), id.String()))
	rec := httptest.NewRecorder()
	h.Me(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data Profile `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "Meera", body.Data.Name)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/users/me", nil)
	req = req.WithContext(common.WithUserID(req.Context(), uuid.NewString()))
	rec = httptest.NewRecorder()
	h.Me(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}
