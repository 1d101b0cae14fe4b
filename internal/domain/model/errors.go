package model

import "fmt"

// ValidationError 不正な座標などの入力エラー（副作用なしで即時に拒否する）
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// FetchError 外部API呼び出しがリトライ後も失敗したことを表す
type FetchError struct {
	Key        CoordinateKey
	Attempts   int
	StatusCode int    // HTTPステータス（トランスポートエラー時は0）
	Status     string // Places APIのstatusフィールド
	Err        error
}

func (e *FetchError) Error() string {
	msg := fmt.Sprintf("周辺スポット取得失敗 (key=%s, attempts=%d", e.Key, e.Attempts)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(", http=%d", e.StatusCode)
	}
	if e.Status != "" {
		msg += ", status=" + e.Status
	}
	msg += ")"
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FetchError) Unwrap() error { return e.Err }

// StoreError データベース接続・クエリ・トランザクションの失敗
type StoreError struct {
	Op  string
	Key string
	Err error
}

func (e *StoreError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("ストア操作失敗 (%s): %v", e.Op, e.Err)
	}
	return fmt.Sprintf("ストア操作失敗 (%s, key=%s): %v", e.Op, e.Key, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// BrokerError キューへの接続・宣言・publishの失敗
type BrokerError struct {
	Op  string
	Err error
}

func (e *BrokerError) Error() string {
	return fmt.Sprintf("ブローカー操作失敗 (%s): %v", e.Op, e.Err)
}

func (e *BrokerError) Unwrap() error { return e.Err }
