package directory

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/linechat-server/internal/store"
	"github.com/vovakirdan/linechat-server/internal/store/sqlite"
)

func newTestDirectory(t *testing.T) (*Service, *sqlite.SQLiteStore) {
	t.Helper()

	st, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	logger := zerolog.Nop()
	svc := New(st, &logger)
	require.NoError(t, svc.Bootstrap(context.Background()))
	return svc, st
}

func roomNames(rooms []*store.Room) []string {
	names := make([]string, 0, len(rooms))
	for _, r := range rooms {
		names = append(names, r.Name)
	}
	return names
}

func TestBootstrapCreatesGeneralOnce(t *testing.T) {
	svc, st := newTestDirectory(t)
	ctx := context.Background()

	require.NoError(t, svc.Bootstrap(ctx))

	public, err := st.ListPublicRooms(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{store.GeneralRoom}, roomNames(public))
	assert.Equal(t, []string{store.GeneralRoom}, roomNames(svc.PublicRooms()))
}

func TestProvisionRegisteredCreatesDualRooms(t *testing.T) {
	svc, st := newTestDirectory(t)
	ctx := context.Background()

	a, err := st.CreateUser(ctx, "A", "hash")
	require.NoError(t, err)
	rooms, err := svc.ProvisionRegistered(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, []string{store.GeneralRoom}, roomNames(rooms))

	b, err := st.CreateUser(ctx, "B", "hash")
	require.NoError(t, err)
	rooms, err = svc.ProvisionRegistered(ctx, b)
	require.NoError(t, err)
	assert.Equal(t, []string{"A-B", store.GeneralRoom}, roomNames(rooms))

	dual, err := st.FindDualRoom(ctx, b.ID, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "A-B", dual.Name)
	assert.ElementsMatch(t, []int64{a.ID, b.ID}, dual.ParticipantIDs)

	general, err := st.GetRoomByName(ctx, store.GeneralRoom)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{a.ID, b.ID}, general.ParticipantIDs)

	// Logging in again must not create another dual room.
	rooms, err = svc.ProvisionAuthenticated(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, []string{"A-B", store.GeneralRoom}, roomNames(rooms))

	aRooms, err := st.ListRoomsForUser(ctx, a.ID)
	require.NoError(t, err)
	assert.Len(t, aRooms, 2)
}

func TestCreateRoomResolvesMembersAndPublishes(t *testing.T) {
	svc, st := newTestDirectory(t)
	ctx := context.Background()

	carol, err := st.CreateUser(ctx, "carol", "hash")
	require.NoError(t, err)
	alice, err := st.CreateUser(ctx, "alice", "hash")
	require.NoError(t, err)
	bob, err := st.CreateUser(ctx, "bob", "hash")
	require.NoError(t, err)
	dave, err := st.CreateUser(ctx, "dave", "hash")
	require.NoError(t, err)

	room, err := svc.CreateRoom(ctx, carol, "team", true, []string{"alice", "bob", "ghost", "alice"})
	require.NoError(t, err)
	assert.True(t, room.IsPublic)
	assert.False(t, room.IsDual)
	assert.ElementsMatch(t, []int64{carol.ID, alice.ID, bob.ID}, room.ParticipantIDs)

	_, err = svc.CreateRoom(ctx, dave, "team", false, nil)
	assert.ErrorIs(t, err, ErrRoomExists)

	_, err = svc.CreateRoom(ctx, dave, "bad-name", false, nil)
	assert.ErrorIs(t, err, ErrInvalidRoomName)

	// Dave is not a member but sees the public room.
	available, err := svc.ListAvailableRooms(ctx, dave)
	require.NoError(t, err)
	names := make([]string, 0, len(available))
	for _, r := range available {
		names = append(names, r.Room.Name)
	}
	assert.Contains(t, names, "team")
}

func TestPrivateRoomsStayHidden(t *testing.T) {
	svc, st := newTestDirectory(t)
	ctx := context.Background()

	carol, err := st.CreateUser(ctx, "carol", "hash")
	require.NoError(t, err)
	dave, err := st.CreateUser(ctx, "dave", "hash")
	require.NoError(t, err)

	_, err = svc.CreateRoom(ctx, carol, "secret", false, nil)
	require.NoError(t, err)

	available, err := svc.ListAvailableRooms(ctx, dave)
	require.NoError(t, err)
	for _, r := range available {
		assert.NotEqual(t, "secret", r.Room.Name)
	}

	available, err = svc.ListAvailableRooms(ctx, carol)
	require.NoError(t, err)
	found := false
	for _, r := range available {
		if r.Room.Name == "secret" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestListAvailableRoomsCountsUnread(t *testing.T) {
	svc, st := newTestDirectory(t)
	ctx := context.Background()

	a, err := st.CreateUser(ctx, "a", "hash")
	require.NoError(t, err)
	_, err = svc.ProvisionRegistered(ctx, a)
	require.NoError(t, err)
	b, err := st.CreateUser(ctx, "b", "hash")
	require.NoError(t, err)
	_, err = svc.ProvisionRegistered(ctx, b)
	require.NoError(t, err)

	general, err := st.GetRoomByName(ctx, store.GeneralRoom)
	require.NoError(t, err)
	_, err = st.CreateMessage(ctx, general.ID, a.ID, "hi", []int64{a.ID})
	require.NoError(t, err)

	for range 2 {
		available, err := svc.ListAvailableRooms(ctx, b)
		require.NoError(t, err)
		unread := map[string]int{}
		for _, r := range available {
			unread[r.Room.Name] = r.Unread
		}
		assert.Equal(t, map[string]int{"a-b": 0, store.GeneralRoom: 1}, unread)
	}
}
