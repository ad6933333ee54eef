package linking

import "time"

type Config struct {
	TokenTTL time.Duration `env:"LINKING_TOKEN_TTL" envDefault:"15m"`
}
