package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"reflect"
	"strings"
	"sync"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Loader fills config structs from environment variables, layered over
// values read from dotenv files. Process variables win over file values.
type Loader struct {
	files   []string
	prefix  string
	environ map[string]string
}

// Option configures a Loader.
type Option func(*Loader)

// WithDotEnv replaces the dotenv files read before parsing. Missing files
// are skipped. The default is ".env".
func WithDotEnv(files ...string) Option {
	return func(l *Loader) { l.files = files }
}

// WithPrefix prepends prefix to every variable name.
func WithPrefix(prefix string) Option {
	return func(l *Loader) { l.prefix = prefix }
}

// WithEnvironment parses from vars instead of the process environment.
// Dotenv files are still applied underneath.
func WithEnvironment(vars map[string]string) Option {
	return func(l *Loader) { l.environ = vars }
}

func NewLoader(opts ...Option) *Loader {
	l := &Loader{files: []string{".env"}}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load parses into v, which must be a non-nil pointer to a struct.
func (l *Loader) Load(v any) error {
	if v == nil || reflect.ValueOf(v).Kind() != reflect.Pointer || reflect.ValueOf(v).IsNil() {
		return ErrNilPointer
	}

	vars, err := l.variables()
	if err != nil {
		return err
	}
	if err := env.ParseWithOptions(v, env.Options{Environment: vars, Prefix: l.prefix}); err != nil {
		return errors.Join(ErrParsingConfig, err)
	}
	return nil
}

func (l *Loader) variables() (map[string]string, error) {
	vars := make(map[string]string)
	for _, name := range l.files {
		fileVars, err := godotenv.Read(name)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrDotEnv, name, err)
		}
		for k, v := range fileVars {
			if _, seen := vars[k]; !seen {
				vars[k] = v
			}
		}
	}

	if l.environ != nil {
		for k, v := range l.environ {
			vars[k] = v
		}
		return vars, nil
	}
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			vars[k] = v
		}
	}
	return vars, nil
}

var cached sync.Map // reflect.Type -> func() (any, error)

// Load returns the process-wide value of config type T, parsing it with the
// default Loader on first use. Later calls return the same value, or the
// same error.
//
//	type StoreConfig struct {
//		URL   string `env:"NOTIFY_STORE_URL,required"`
//		Token string `env:"NOTIFY_STORE_TOKEN"`
//	}
//
//	cfg, err := config.Load[StoreConfig]()
func Load[T any]() (T, error) {
	key := reflect.TypeFor[T]()
	once, _ := cached.LoadOrStore(key, sync.OnceValues(func() (any, error) {
		var v T
		err := NewLoader().Load(&v)
		return v, err
	}))
	v, err := once.(func() (any, error))()
	return v.(T), err
}

// MustLoad is Load for program startup. It panics on error.
func MustLoad[T any]() T {
	v, err := Load[T]()
	if err != nil {
		panic(fmt.Sprintf("config: load %s: %v", reflect.TypeFor[T](), err))
	}
	return v
}
