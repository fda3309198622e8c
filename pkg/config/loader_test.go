package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifykit/pkg/config"
)

type storeConfig struct {
	URL      string        `env:"STORE_URL,required"`
	Timeout  time.Duration `env:"STORE_TIMEOUT" envDefault:"10s"`
	Retries  int           `env:"STORE_RETRIES" envDefault:"3"`
	Insecure bool          `env:"STORE_INSECURE"`
}

func writeDotEnv(t *testing.T, content string) string {
	t.Helper()
	name := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(name, []byte(content), 0o600))
	return name
}

func TestLoader_Load(t *testing.T) {
	t.Parallel()

	dotenv := writeDotEnv(t, "STORE_URL=https://file.example.com\nSTORE_RETRIES=7\n")

	tests := []struct {
		name    string
		opts    []config.Option
		want    storeConfig
		wantErr error
	}{
		{
			name: "defaults",
			opts: []config.Option{
				config.WithDotEnv(),
				config.WithEnvironment(map[string]string{"STORE_URL": "https://api.example.com"}),
			},
			want: storeConfig{URL: "https://api.example.com", Timeout: 10 * time.Second, Retries: 3},
		},
		{
			name: "explicit values",
			opts: []config.Option{
				config.WithDotEnv(),
				config.WithEnvironment(map[string]string{
					"STORE_URL":      "https://api.example.com",
					"STORE_TIMEOUT":  "2s",
					"STORE_INSECURE": "true",
				}),
			},
			want: storeConfig{URL: "https://api.example.com", Timeout: 2 * time.Second, Retries: 3, Insecure: true},
		},
		{
			name: "dotenv fills gaps",
			opts: []config.Option{
				config.WithDotEnv(dotenv),
				config.WithEnvironment(map[string]string{"STORE_RETRIES": "1"}),
			},
			want: storeConfig{URL: "https://file.example.com", Timeout: 10 * time.Second, Retries: 1},
		},
		{
			name: "prefix",
			opts: []config.Option{
				config.WithDotEnv(),
				config.WithPrefix("REPLICA_"),
				config.WithEnvironment(map[string]string{
					"STORE_URL":         "https://ignored.example.com",
					"REPLICA_STORE_URL": "https://replica.example.com",
				}),
			},
			want: storeConfig{URL: "https://replica.example.com", Timeout: 10 * time.Second, Retries: 3},
		},
		{
			name: "missing dotenv file is skipped",
			opts: []config.Option{
				config.WithDotEnv(filepath.Join(t.TempDir(), "absent.env")),
				config.WithEnvironment(map[string]string{"STORE_URL": "https://api.example.com"}),
			},
			want: storeConfig{URL: "https://api.example.com", Timeout: 10 * time.Second, Retries: 3},
		},
		{
			name: "missing required",
			opts: []config.Option{
				config.WithDotEnv(),
				config.WithEnvironment(map[string]string{}),
			},
			wantErr: config.ErrParsingConfig,
		},
		{
			name: "malformed duration",
			opts: []config.Option{
				config.WithDotEnv(),
				config.WithEnvironment(map[string]string{"STORE_URL": "x", "STORE_TIMEOUT": "soon"}),
			},
			wantErr: config.ErrParsingConfig,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var got storeConfig
			err := config.NewLoader(tt.opts...).Load(&got)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLoader_NilTarget(t *testing.T) {
	t.Parallel()

	l := config.NewLoader(config.WithDotEnv(), config.WithEnvironment(map[string]string{}))
	assert.ErrorIs(t, l.Load(nil), config.ErrNilPointer)

	var cfg *storeConfig
	assert.ErrorIs(t, l.Load(cfg), config.ErrNilPointer)
}

type cachedConfig struct {
	Name string `env:"NOTIFYKIT_CONFIG_TEST_NAME" envDefault:"first"`
}

func TestLoad_CachesPerType(t *testing.T) {
	t.Setenv("NOTIFYKIT_CONFIG_TEST_NAME", "initial")

	first, err := config.Load[cachedConfig]()
	require.NoError(t, err)
	assert.Equal(t, "initial", first.Name)

	t.Setenv("NOTIFYKIT_CONFIG_TEST_NAME", "changed")
	second := config.MustLoad[cachedConfig]()
	assert.Equal(t, first, second)
}

type brokenConfig struct {
	Must string `env:"NOTIFYKIT_CONFIG_TEST_UNSET,required"`
}

func TestMustLoad_Panics(t *testing.T) {
	assert.Panics(t, func() { config.MustLoad[brokenConfig]() })

	_, err := config.Load[brokenConfig]()
	assert.ErrorIs(t, err, config.ErrParsingConfig)
}
