package publish

type configGetter interface {
	GetPublish() Config
}

type Config struct {
	// Domain is the public serving domain; sites live at {slug}.{Domain}.
	Domain string `yaml:"domain"`
	// SelfUrl is the externally visible base URL of the API.
	SelfUrl string `yaml:"selfUrl"`
}
