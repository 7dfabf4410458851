package auth

// Identity is an authenticated user identity. Downstream components
// receive an Identity, never the raw token, so the authorization decision
// is made exactly once per request.
type Identity struct {
	UserID string
}

// Guard resolves inbound bearer tokens. It is a pure function of the
// token and the signing secret: no storage access, no side effects.
type Guard struct {
	secret []byte
}

func NewGuard(secretKey string) *Guard {
	return &Guard{secret: []byte(secretKey)}
}

// Resolve validates rawToken and returns the caller's Identity.
// Failures are common.ErrTokenExpired or common.ErrTokenInvalid.
func (g *Guard) Resolve(rawToken string) (Identity, error) {
	userID, err := GetUserIDFromToken(rawToken, g.secret)
	if err != nil {
		return Identity{}, err
	}
	return Identity{UserID: userID}, nil
}
