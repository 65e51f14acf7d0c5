package relay

import "slices"

// RoleResolver returns the roles held by the caller of a request.
type RoleResolver func(c *Context) ([]Role, error)

// RequireRoles returns a BEFORE-MATCHED handler that rejects requests with
// 403 unless the caller holds at least one of the matched endpoint's roles.
// Endpoints without roles are open.
func RequireRoles(resolve RoleResolver) Handler {
	return func(c *Context) error {
		required := c.RouteRoles()
		if len(required) == 0 {
			return nil
		}
		held, err := resolve(c)
		if err != nil {
			return err
		}
		for _, r := range required {
			if slices.Contains(held, r) {
				return nil
			}
		}
		return Forbidden("Missing required role")
	}
}
