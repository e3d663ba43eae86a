package utils

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"time"

	"bitbucket.org/graniteval/assessor_backend/config"
)

func GetCacheLifespan() time.Duration {
	lifespan, err := strconv.Atoi(os.Getenv("CACHE_LIFESPAN"))
	if err != nil {
		lifespan = 1
	}
	return time.Duration(lifespan) * time.Hour
}

/* generic functions */

func GetTypeName[T any]() string {
	var v T
	typeOfT := reflect.TypeOf(v)
	return typeOfT.Name()
}

/* resolved configuration snapshots */

func SnapshotCacheKey(municipalityId string, year int) string {
	return fmt.Sprintf("ConfigSnapshot:%s:%d", municipalityId, year)
}

// StoreSnapshotCache caches a resolved configuration snapshot with the standard
// cache lifespan. Snapshots are also invalidated explicitly on every write.
func StoreSnapshotCache(municipalityId string, year int, obj any) error {
	return config.SetRedisObject(SnapshotCacheKey(municipalityId, year), &obj, GetCacheLifespan())
}

func RetrieveSnapshotCache[T any](municipalityId string, year int) (*T, error) {
	var result *T
	exists, err := config.GetRedisObject(SnapshotCacheKey(municipalityId, year), &result)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, nil
	}
	return result, nil
}

// RemoveSnapshotCache drops every cached snapshot for a municipality.
// Configuration writes target one year but change resolution for all later
// years as well, so the whole tenant prefix is cleared.
func RemoveSnapshotCache(municipalityId string) error {
	return config.RemoveRedisKeysByPrefix("ConfigSnapshot:" + municipalityId + ":")
}
