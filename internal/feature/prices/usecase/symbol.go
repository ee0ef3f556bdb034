package usecase

import (
	"fmt"
	"strings"
)

// maxSymbolLength は symbols.code 列の長さに合わせています。
const maxSymbolLength = 20

// NormalizeSymbol は前後の空白を除去して大文字化し、使用可能な文字だけで構成されているか検証します。
// 許可する文字は英数字と ".", "-", "^", "=" です（例: "BRK.B", "7203.T", "^GSPC"）。
func NormalizeSymbol(s string) (string, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" || len(s) > maxSymbolLength {
		return "", fmt.Errorf("%w: %q", ErrInvalidSymbol, s)
	}
	for _, r := range s {
		switch {
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '.', r == '-', r == '^', r == '=':
		default:
			return "", fmt.Errorf("%w: %q", ErrInvalidSymbol, s)
		}
	}
	return s, nil
}
