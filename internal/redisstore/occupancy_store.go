package redisstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ActiveVehicle is the cached view of an admitted vehicle, used by dashboards
// without touching Postgres. The authoritative record stays in the repository.
type ActiveVehicle struct {
	SessionID string    `json:"session_id"`
	Plate     string    `json:"plate"`
	Zone      string    `json:"zone"`
	EntryTime time.Time `json:"entry_time"`
}

// Store manages the active-vehicle cache and per-zone occupancy gauges.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

// NewStore returns redis-backed store.
func NewStore(client *redis.Client, ttl time.Duration) *Store {
	return &Store{client: client, ttl: ttl}
}

func (s *Store) vehicleKey(plate string) string {
	return fmt.Sprintf("parking:active:%s", plate)
}

func (s *Store) occupancyKey(zone string) string {
	return fmt.Sprintf("parking:occupancy:%s", zone)
}

// SaveVehicle caches an admitted vehicle.
func (s *Store) SaveVehicle(ctx context.Context, vehicle ActiveVehicle) error {
	data, err := json.Marshal(vehicle)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.vehicleKey(vehicle.Plate), data, s.ttl).Err()
}

// GetVehicle returns a cached vehicle by exact plate.
func (s *Store) GetVehicle(ctx context.Context, plate string) (*ActiveVehicle, error) {
	result, err := s.client.Get(ctx, s.vehicleKey(plate)).Result()
	if err != nil {
		return nil, err
	}
	var vehicle ActiveVehicle
	if err := json.Unmarshal([]byte(result), &vehicle); err != nil {
		return nil, err
	}
	return &vehicle, nil
}

// DeleteVehicle removes a released vehicle from the cache.
func (s *Store) DeleteVehicle(ctx context.Context, plate string) error {
	return s.client.Del(ctx, s.vehicleKey(plate)).Err()
}

// SetOccupancy publishes the current occupancy gauge for a zone.
func (s *Store) SetOccupancy(ctx context.Context, zone string, count int) error {
	return s.client.Set(ctx, s.occupancyKey(zone), count, 0).Err()
}
