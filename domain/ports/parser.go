package ports

import "github.com/reglet-dev/dylib-host/domain/entities"

// ConfigParser parses raw configuration bytes into a Config.
type ConfigParser interface {
	// Parse unmarshals raw bytes into a Config struct.
	Parse(data []byte) (*entities.Config, error)
}
