// Package dto はsymbollist HTTP APIのレスポンス型を定義します。
package dto

// SymbolItem は /symbols の1要素です。内部の並び順や有効フラグは公開しません。
type SymbolItem struct {
	Code   string `json:"code"`
	Name   string `json:"name"`
	Market string `json:"market"`
}

// ErrorResponse はエラー時のレスポンスです。
type ErrorResponse struct {
	Error string `json:"error"`
}
