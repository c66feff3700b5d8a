// Package identity reads the current user out of the session JWT issued
// by the external auth system. This client never issues or refreshes
// tokens; it only consumes one.
package identity

import (
	"fmt"

	"chat-client/internal/models"

	"github.com/golang-jwt/jwt/v5"
)

// anonymousName is the fallback when the token carries no usable
// display identity.
const anonymousName = "anonymous"

type Identity struct {
	MemberID    string
	DisplayName string
	AvatarURL   string
}

func (i *Identity) Member() *models.Member {
	return &models.Member{
		ID:          i.MemberID,
		DisplayName: i.DisplayName,
		AvatarURL:   i.AvatarURL,
	}
}

// FromToken validates the session token and extracts the member
// identity from its claims. Display name falls back from "name" to
// "email" to an anonymous placeholder; avatar is optional.
func FromToken(tokenString string, secret []byte) (*Identity, error) {
	token, err := jwt.ParseWithClaims(tokenString, &jwt.MapClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("invalid session token: %w", err)
	}

	claims, ok := token.Claims.(*jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid session token")
	}

	memberID, _ := (*claims)["sub"].(string)
	if memberID == "" {
		return nil, fmt.Errorf("session token has no subject")
	}

	displayName, _ := (*claims)["name"].(string)
	if displayName == "" {
		displayName, _ = (*claims)["email"].(string)
	}
	if displayName == "" {
		displayName = anonymousName
	}

	avatarURL, _ := (*claims)["avatar_url"].(string)

	return &Identity{
		MemberID:    memberID,
		DisplayName: displayName,
		AvatarURL:   avatarURL,
	}, nil
}
