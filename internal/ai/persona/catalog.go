package persona

import (
	"embed"
	"os"
	"path/filepath"
	"time"

	"aibbs/internal/models"
	"aibbs/internal/utils"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

//go:embed personas/*.yaml
var embedded embed.FS

// Persona 一个 AI 角色
type Persona struct {
	Name        string   `yaml:"name"`
	Role        string   `yaml:"role"`
	Temperature *float64 `yaml:"temperature,omitempty"`
	MaxTokens   *int     `yaml:"max_tokens,omitempty"`
}

// Settings 整个目录共用的生成参数
type Settings struct {
	MaxReplies  int     `yaml:"max_replies"`
	Temperature float64 `yaml:"temperature"`
	NumPredict  int     `yaml:"num_predict"`
}

// Catalog 单个语言的人格列表
type Catalog struct {
	Settings Settings  `yaml:"settings"`
	Personas []Persona `yaml:"personas"`
}

// Parse 解析目录并补全未设置的参数
func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, errors.Wrap(err, "parse persona catalog")
	}
	if c.Settings.MaxReplies <= 0 {
		c.Settings.MaxReplies = 3
	}
	if c.Settings.Temperature == 0 {
		c.Settings.Temperature = 0.8
	}
	if c.Settings.NumPredict <= 0 {
		c.Settings.NumPredict = 180
	}
	return &c, nil
}

// Find 按名字查找人格
func (c *Catalog) Find(name string) (Persona, bool) {
	for _, p := range c.Personas {
		if p.Name == name {
			return p, true
		}
	}
	return Persona{}, false
}

// Source 按语言提供目录
type Source interface {
	Load(lang string) (*Catalog, error)
}

const catalogTTL = 5 * time.Minute

// Loader 优先读取 Dir 下的 personas_<lang>.yaml，没有则用内置目录。
// 解析结果缓存几分钟，修改 Dir 后无需重启
type Loader struct {
	Dir   string
	cache *utils.Cache[*Catalog]
}

func NewLoader(dir string) *Loader {
	return &Loader{Dir: dir, cache: utils.NewCache[*Catalog](8)}
}

func (l *Loader) Load(lang string) (*Catalog, error) {
	if lang != models.LangEN {
		lang = models.LangJP
	}
	if c, ok := l.cache.Get(lang); ok {
		return c, nil
	}

	data, err := l.read(lang)
	if err != nil {
		return nil, err
	}
	c, err := Parse(data)
	if err != nil {
		return nil, errors.Wrapf(err, "catalog %s", lang)
	}
	l.cache.Set(lang, c, catalogTTL)
	return c, nil
}

func (l *Loader) read(lang string) ([]byte, error) {
	if l.Dir != "" {
		data, err := os.ReadFile(filepath.Join(l.Dir, "personas_"+lang+".yaml"))
		if err == nil {
			return data, nil
		}
		if !os.IsNotExist(err) {
			return nil, errors.Wrap(err, "read persona catalog")
		}
	}
	data, err := embedded.ReadFile("personas/" + lang + ".yaml")
	return data, errors.Wrap(err, "read built-in persona catalog")
}
