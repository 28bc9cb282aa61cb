package ports

import "github.com/layer-3/keyauth/core"

// Tokenizer converts between sessions and signed session tokens
type Tokenizer interface {
	IssueSession(userID core.UserID, address string) (string, *core.Session, error)
	VerifySession(token string) (*core.Session, error)
}
