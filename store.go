package main

import (
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

var roomsBucket = []byte("rooms")

// RoomStore persists one full JSON document per room code, replaced
// wholesale on every mutation. There is no delta format.
type RoomStore struct {
	db *bolt.DB
}

func openRoomStore(path string) (*RoomStore, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening room store: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(roomsBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initializing room store: %w", err)
	}

	return &RoomStore{db: db}, nil
}

func (rs *RoomStore) Save(state *RoomState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encoding room %s: %w", state.RoomCode, err)
	}

	return rs.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(roomsBucket).Put([]byte(state.RoomCode), data)
	})
}

// Load returns nil without error when the room has never been persisted.
func (rs *RoomStore) Load(roomCode string) (*RoomState, error) {
	var state *RoomState

	err := rs.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(roomsBucket).Get([]byte(roomCode))
		if data == nil {
			return nil
		}
		state = &RoomState{}
		return json.Unmarshal(data, state)
	})
	if err != nil {
		return nil, fmt.Errorf("decoding room %s: %w", roomCode, err)
	}

	return state, nil
}

func (rs *RoomStore) Close() error {
	return rs.db.Close()
}
