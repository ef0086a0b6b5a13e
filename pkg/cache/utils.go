package cache

import "fmt"

// GenerateKeyWithParams joins a prefix and parameters into a cache key.
func GenerateKeyWithParams(prefix string, params ...interface{}) string {
	key := prefix
	for _, param := range params {
		key = fmt.Sprintf("%s:%v", key, param)
	}
	return key
}

// BuildPattern creates a Redis pattern matching every key under prefix.
func BuildPattern(prefix string) string {
	return fmt.Sprintf("%s*", prefix)
}
