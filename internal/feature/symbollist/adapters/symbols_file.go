package adapters

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"marketdata_backend/internal/feature/symbollist/domain/entity"
)

// DefaultSymbols は設定ファイルが無い場合に登録する銘柄です。
var DefaultSymbols = []string{
	"AAPL", "MSFT", "GOOGL", "AMZN", "TSLA",
	"NVDA", "META", "JNJ", "MA", "NFLX",
}

type symbolsFile struct {
	Symbols []entity.Symbol `yaml:"symbols"`
}

// LoadSymbolsFile は YAML 形式の銘柄ユニバースを読み込みます。
// ファイルが存在しない場合は DefaultSymbols を返します。
// 並び順は sort_key としてそのまま保存されます。
func LoadSymbolsFile(path string) ([]entity.Symbol, error) {
	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return defaultUniverse(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read symbols file: %w", err)
	}
	return ParseSymbols(b)
}

// ParseSymbols は YAML の内容を銘柄リストに変換します。
func ParseSymbols(b []byte) ([]entity.Symbol, error) {
	var f symbolsFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parse symbols file: %w", err)
	}

	seen := make(map[string]struct{}, len(f.Symbols))
	out := make([]entity.Symbol, 0, len(f.Symbols))
	for i, s := range f.Symbols {
		code := strings.ToUpper(strings.TrimSpace(s.Code))
		if code == "" {
			return nil, fmt.Errorf("parse symbols file: entry %d has no code", i)
		}
		if _, dup := seen[code]; dup {
			continue
		}
		seen[code] = struct{}{}

		s.Code = code
		if s.Name == "" {
			s.Name = code
		}
		if s.Market == "" {
			s.Market = entity.DefaultMarket
		}
		s.IsActive = true
		s.SortKey = len(out) + 1
		out = append(out, s)
	}
	return out, nil
}

func defaultUniverse() []entity.Symbol {
	out := make([]entity.Symbol, 0, len(DefaultSymbols))
	for i, code := range DefaultSymbols {
		out = append(out, entity.Symbol{
			Code:     code,
			Name:     code,
			Market:   entity.DefaultMarket,
			IsActive: true,
			SortKey:  i + 1,
		})
	}
	return out
}
