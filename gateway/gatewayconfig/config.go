package gatewayconfig

type ConfigGetter interface {
	GetGateway() Config
}

type Config struct {
	Addr string `yaml:"addr"`
	// Domain is the wildcard serving domain; requests arrive at
	// {slug}.{Domain}.
	Domain string `yaml:"domain"`
}
