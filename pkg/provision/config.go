package provision

import "time"

type Config struct {
	Timeout time.Duration `env:"PROVISION_TIMEOUT" envDefault:"10s"`
}
