package relay

import (
	"bytes"
	"errors"
)

// SelfValidator is implemented by request types that validate themselves.
type SelfValidator interface {
	Validate() error
}

// Validator validates any decoded request body.
type Validator interface {
	Validate(req any) error
}

// BodyAs decodes the request body into v with the router's JSONMapper, then
// runs v's SelfValidator and the router's Validator. Decode and validation
// failures become 400 errors unless they already carry a status.
func (c *Context) BodyAs(v any) error {
	data, err := c.Body()
	if err != nil {
		return err
	}
	if err := c.router.json.Decode(bytes.NewReader(data), v); err != nil {
		return BadRequest("Couldn't deserialize body: " + err.Error())
	}

	if sv, ok := v.(SelfValidator); ok {
		if err := sv.Validate(); err != nil {
			return asBadRequest(err)
		}
	}
	if c.router.validator != nil {
		if err := c.router.validator.Validate(v); err != nil {
			return asBadRequest(err)
		}
	}
	return nil
}

func asBadRequest(err error) error {
	var sc StatusCoder
	if errors.As(err, &sc) {
		return err
	}
	return BadRequest(err.Error())
}
