package geo

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const defaultGeoKey = "geo:postal_codes"

// RedisDistance хранит центроиды в GEO-множестве и считает расстояние через GEODIST.
type RedisDistance struct {
	rdb *redis.Client
	key string
}

func NewRedisDistance(rdb *redis.Client, key string) *RedisDistance {
	if key == "" {
		key = defaultGeoKey
	}
	return &RedisDistance{rdb: rdb, key: key}
}

// Seed загружает центроиды одним GEOADD.
func (d *RedisDistance) Seed(ctx context.Context, centroids map[string]Point) error {
	if len(centroids) == 0 {
		return nil
	}
	locs := make([]*redis.GeoLocation, 0, len(centroids))
	for code, p := range centroids {
		locs = append(locs, &redis.GeoLocation{
			Name:      NormalizePostalCode(code),
			Longitude: p.Lon,
			Latitude:  p.Lat,
		})
	}
	if err := d.rdb.GeoAdd(ctx, d.key, locs...).Err(); err != nil {
		return fmt.Errorf("geoadd %s: %w", d.key, err)
	}
	return nil
}

func (d *RedisDistance) WithinKm(ctx context.Context, from, to string, km float64) (bool, error) {
	dist, err := d.rdb.GeoDist(ctx, d.key, NormalizePostalCode(from), NormalizePostalCode(to), "km").Result()
	if errors.Is(err, redis.Nil) {
		// один из индексов не загружен
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("geodist: %w", err)
	}
	return dist <= km, nil
}
