package store

import (
	"errors"
	"testing"
)

func newMemStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpenSeedsSentinelsAndLobby(t *testing.T) {
	s := newMemStore(t)

	if _, err := s.GetUserByUsername(SentinelID); err != nil {
		t.Fatalf("expected sentinel user to exist: %v", err)
	}

	room, err := s.GetRoomByName(LobbyName)
	if err != nil {
		t.Fatalf("expected Lobby room to exist: %v", err)
	}
	if room.Name != LobbyName {
		t.Errorf("got room name %q, want %q", room.Name, LobbyName)
	}
}

func TestOpenIsIdempotent(t *testing.T) {
	s := newMemStore(t)

	if err := s.ensureSeed(); err != nil {
		t.Fatalf("second ensureSeed: %v", err)
	}

	var lobbyCount int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM rooms WHERE name = ?`, LobbyName).Scan(&lobbyCount); err != nil {
		t.Fatalf("count lobby rows: %v", err)
	}
	if lobbyCount != 1 {
		t.Errorf("expected exactly 1 Lobby row after reseed, got %d", lobbyCount)
	}
}

func TestInsertUserDuplicateUsername(t *testing.T) {
	s := newMemStore(t)

	if _, err := s.InsertUser("alice", "hash1"); err != nil {
		t.Fatalf("first InsertUser: %v", err)
	}

	_, err := s.InsertUser("alice", "hash2")
	var constraintErr *ConstraintError
	if !errors.As(err, &constraintErr) {
		t.Fatalf("expected *ConstraintError on duplicate username, got %v", err)
	}

	// State unchanged: still exactly one row with the original hash.
	u, err := s.GetUserByUsername("alice")
	if err != nil {
		t.Fatalf("GetUserByUsername: %v", err)
	}
	if u.PasswordHash != "hash1" {
		t.Errorf("expected original hash to survive duplicate insert, got %q", u.PasswordHash)
	}
}

func TestGetUserByUsernameNotFound(t *testing.T) {
	s := newMemStore(t)

	if _, err := s.GetUserByUsername("nobody"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestInsertMessageRejectsAllSentinelTargets(t *testing.T) {
	s := newMemStore(t)
	alice, err := s.InsertUser("alice", "hash")
	if err != nil {
		t.Fatalf("InsertUser: %v", err)
	}

	_, err = s.InsertMessage(alice.ID, "", "", "hi")
	var constraintErr *ConstraintError
	if !errors.As(err, &constraintErr) {
		t.Fatalf("expected *ConstraintError for message with no room/target, got %v", err)
	}
}

func TestInsertMessageBlacklistEnforced(t *testing.T) {
	s := newMemStore(t)
	alice, err := s.InsertUser("alice", "hash")
	if err != nil {
		t.Fatalf("InsertUser alice: %v", err)
	}
	bob, err := s.InsertUser("bob", "hash")
	if err != nil {
		t.Fatalf("InsertUser bob: %v", err)
	}

	// alice blocks bob.
	if err := s.InsertBlacklist(alice.ID, bob.ID); err != nil {
		t.Fatalf("InsertBlacklist: %v", err)
	}

	// bob -> alice DM must be rejected.
	_, err = s.InsertMessage(bob.ID, "", alice.ID, "hey")
	var constraintErr *ConstraintError
	if !errors.As(err, &constraintErr) {
		t.Fatalf("expected *ConstraintError for blocked DM, got %v", err)
	}

	// alice -> bob is unaffected (block is directional).
	if _, err := s.InsertMessage(alice.ID, "", bob.ID, "hi bob"); err != nil {
		t.Fatalf("expected reverse-direction DM to succeed, got %v", err)
	}
}

func TestDeleteBlacklistNotFound(t *testing.T) {
	s := newMemStore(t)
	alice, _ := s.InsertUser("alice", "hash")
	bob, _ := s.InsertUser("bob", "hash")

	if err := s.DeleteBlacklist(alice.ID, bob.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unblock of a non-existing pair, got %v", err)
	}
}

func TestGetRoomListExcludesSentinelAndSortsByName(t *testing.T) {
	s := newMemStore(t)

	if _, err := s.InsertRoom("zebra", ""); err != nil {
		t.Fatalf("InsertRoom zebra: %v", err)
	}
	if _, err := s.InsertRoom("apple", ""); err != nil {
		t.Fatalf("InsertRoom apple: %v", err)
	}

	names, err := s.GetRoomList()
	if err != nil {
		t.Fatalf("GetRoomList: %v", err)
	}

	// SQLite's default BINARY collation orders uppercase before lowercase.
	want := []string{LobbyName, "apple", "zebra"}
	if len(names) != len(want) {
		t.Fatalf("got %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("at index %d: got %q, want %q", i, names[i], want[i])
		}
	}
}

func TestGetRoomMessagesHistoryLimit(t *testing.T) {
	s := newMemStore(t)
	alice, _ := s.InsertUser("alice", "hash")
	lobby, err := s.GetRoomByName(LobbyName)
	if err != nil {
		t.Fatalf("GetRoomByName: %v", err)
	}

	for i := 0; i < 5; i++ {
		if _, err := s.InsertMessage(alice.ID, lobby.ID, "", "msg"); err != nil {
			t.Fatalf("InsertMessage %d: %v", i, err)
		}
	}

	messages, err := s.GetRoomMessages(lobby.ID, 3)
	if err != nil {
		t.Fatalf("GetRoomMessages: %v", err)
	}
	if len(messages) != 3 {
		t.Fatalf("expected at most 3 messages, got %d", len(messages))
	}
	for i := 1; i < len(messages); i++ {
		if messages[i-1].CreatedAt > messages[i].CreatedAt {
			t.Errorf("messages not oldest-first: %q came before %q", messages[i-1].CreatedAt, messages[i].CreatedAt)
		}
	}
}

func TestUpdateLastLoginAndActiveUserCount(t *testing.T) {
	s := newMemStore(t)
	alice, err := s.InsertUser("alice", "hash")
	if err != nil {
		t.Fatalf("InsertUser: %v", err)
	}

	if active, err := s.ActiveUserCount("-24 hours"); err != nil {
		t.Fatalf("ActiveUserCount: %v", err)
	} else if active != 0 {
		t.Fatalf("expected 0 active users before any login, got %d", active)
	}

	if err := s.UpdateLastLogin(alice.ID); err != nil {
		t.Fatalf("UpdateLastLogin: %v", err)
	}

	active, err := s.ActiveUserCount("-24 hours")
	if err != nil {
		t.Fatalf("ActiveUserCount: %v", err)
	}
	if active != 1 {
		t.Fatalf("expected 1 active user after login, got %d", active)
	}

	refetched, err := s.GetUserByUsername("alice")
	if err != nil {
		t.Fatalf("GetUserByUsername: %v", err)
	}
	if refetched.LastLoginAt == nil {
		t.Fatal("expected last_login_at to be set after UpdateLastLogin")
	}
}

func TestListRoomsDetailedIncludesCreator(t *testing.T) {
	s := newMemStore(t)
	alice, err := s.InsertUser("alice", "hash")
	if err != nil {
		t.Fatalf("InsertUser: %v", err)
	}

	if _, err := s.InsertRoom("watercooler", alice.ID); err != nil {
		t.Fatalf("InsertRoom: %v", err)
	}

	details, err := s.ListRoomsDetailed()
	if err != nil {
		t.Fatalf("ListRoomsDetailed: %v", err)
	}

	var found bool
	for _, d := range details {
		if d.Name != "watercooler" {
			continue
		}
		found = true
		if d.CreatedBy != alice.ID || d.CreatedByUsername != "alice" {
			t.Errorf("expected creator alice, got id=%q username=%q", d.CreatedBy, d.CreatedByUsername)
		}
	}
	if !found {
		t.Fatal("expected watercooler in ListRoomsDetailed")
	}

	for _, d := range details {
		if d.Name == LobbyName && d.CreatedByUsername != SentinelID {
			t.Errorf("expected Lobby's creator to be the sentinel user, got %q", d.CreatedByUsername)
		}
	}
}
