package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/eoncord/chatsync-go/chatsync"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks every field and reports all problems at once.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return chatsync.WrapError(chatsync.ErrorInvalidConfig, "validate config", err)
	}
	problems := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		problems = append(problems, fmt.Sprintf("%s failed %q", fe.Field(), fe.Tag()))
	}
	return chatsync.NewError(chatsync.ErrorInvalidConfig, "invalid config: "+strings.Join(problems, ", "))
}
