/*
Package authsdk is a Go client for the stocktake authentication service.

# Client and Session

A Client talks to the public endpoints: registration, login, refresh,
logout, password reset and the health probes. Login and Register return a
TokenResponse; wrap it in a Session for the endpoints that need a bearer
token.

	client := authsdk.NewClient("https://auth.example.com")

	tokens, err := client.Login(ctx, authsdk.LoginRequest{
		Email:    "alice@example.com",
		Password: password,
	})
	if authsdk.IsCode(err, authsdk.ErrorCodeTwoFactorRequired) {
		tokens, err = client.Login(ctx, authsdk.LoginRequest{
			Email:    "alice@example.com",
			Password: password,
			Code:     otp,
		})
	}

	session := client.NewSession(tokens)
	me, err := session.Me(ctx)

A Session refreshes its access token shortly before it expires. The refresh
call sends the stale access token along with the refresh token so the
server can check both belong to the same user. Refresh tokens rotate on
every use; Session keeps the newest one.

# Errors

Every non-2xx response is returned as *APIError carrying the HTTP status,
the machine readable code and a description. Use IsCode or errors.As to
branch on it.
*/
package authsdk
