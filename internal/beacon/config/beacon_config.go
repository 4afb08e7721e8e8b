// Separate package is workaround to import cycles.
package beacon_config

type Config struct {
	Enabled           bool   `hcl:"enabled"`
	Broker            string `hcl:"broker"` // tcp://host:port
	Password          string `hcl:"password"`
	TlsCaFile         string `hcl:"tls_ca_file"`
	StateIntervalSec  int    `hcl:"state_interval_sec"`
	NetworkTimeoutSec int    `hcl:"network_timeout_sec"`
	LogDebug          bool   `hcl:"log_debug"`
}
