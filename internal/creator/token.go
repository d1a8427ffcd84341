package creator

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// 房间创建者能力令牌：创建房间时签发，重连后凭它恢复创建者身份，
// 持久化开关的重配置操作只接受携带有效令牌或本次会话创建房间的连接。

type Claims struct {
	Room string `json:"room"`
	jwt.RegisteredClaims
}

// Issue 为房间创建者签发能力令牌。
func Issue(roomCode, secret string) (string, error) {
	now := time.Now()
	claims := Claims{
		Room: roomCode,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   roomCode,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(30 * 24 * time.Hour)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// Verify 校验令牌并确认其绑定的房间码。
func Verify(tokenStr, roomCode, secret string) error {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	})
	if err != nil {
		return err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return errors.New("invalid creator token")
	}
	if claims.Room != roomCode {
		return errors.New("creator token bound to another room")
	}
	return nil
}
