// Package geo отвечает на вопрос "лежит ли индекс B в радиусе N км от индекса A".
// Сам расчёт расстояний для ядра — чёрный ящик за DistanceService.
package geo

import (
	"context"
	"fmt"
	"math"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v2"
)

type DistanceService interface {
	// WithinKm: true, если to находится не дальше km от from.
	// Неизвестный индекс: это false без ошибки.
	WithinKm(ctx context.Context, from, to string, km float64) (bool, error)
}

type Point struct {
	Lat float64 `yaml:"lat"`
	Lon float64 `yaml:"lon"`
}

type centroidFile struct {
	Centroids map[string]Point `yaml:"centroids"`
}

// LoadCentroids читает YAML вида:
//
//	centroids:
//	  "10115": {lat: 52.5323, lon: 13.3846}
func LoadCentroids(path string) (map[string]Point, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read centroids: %w", err)
	}
	return ParseCentroids(raw)
}

func ParseCentroids(raw []byte) (map[string]Point, error) {
	var f centroidFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse centroids: %w", err)
	}
	out := make(map[string]Point, len(f.Centroids))
	for code, p := range f.Centroids {
		if p.Lat < -90 || p.Lat > 90 || p.Lon < -180 || p.Lon > 180 {
			return nil, fmt.Errorf("centroid %s: invalid coordinates %v", code, p)
		}
		out[NormalizePostalCode(code)] = p
	}
	return out, nil
}

func NormalizePostalCode(code string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(code), " ", ""))
}

// StaticDistance считает расстояние по центроидам индексов в памяти.
type StaticDistance struct {
	mu        sync.RWMutex
	centroids map[string]Point
}

func NewStaticDistance(centroids map[string]Point) *StaticDistance {
	c := make(map[string]Point, len(centroids))
	for k, v := range centroids {
		c[NormalizePostalCode(k)] = v
	}
	return &StaticDistance{centroids: c}
}

func (s *StaticDistance) Set(code string, p Point) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.centroids[NormalizePostalCode(code)] = p
}

func (s *StaticDistance) WithinKm(ctx context.Context, from, to string, km float64) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.RLock()
	a, okA := s.centroids[NormalizePostalCode(from)]
	b, okB := s.centroids[NormalizePostalCode(to)]
	s.mu.RUnlock()
	if !okA || !okB {
		return false, nil
	}
	return Haversine(a, b) <= km, nil
}

const earthRadiusKm = 6371.0

// Haversine считает расстояние по дуге большого круга в километрах.
func Haversine(a, b Point) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKm * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}
