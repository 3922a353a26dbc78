package validation

import (
	"net/http"

	validatorv10 "github.com/go-playground/validator/v10"

	"github.com/grovia/settlement/pkg/utils"
)

var validate = validatorv10.New()

// DecodeAndValidate binds the JSON body into dst and runs struct validation.
// On failure it writes the error response and reports false so the handler
// can short-circuit.
func DecodeAndValidate(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if status, err := utils.DecodeJSONBody(w, r, dst); err != nil {
		utils.BuildErrorResponse(w, status, "Invalid request", map[string]string{"error": err.Error()})
		return false
	}

	if err := validate.Struct(dst); err != nil {
		utils.BuildErrorResponse(w, http.StatusUnprocessableEntity, "Validation failed", errorsToMap(err))
		return false
	}

	return true
}

func errorsToMap(err error) map[string]string {
	out := map[string]string{}
	if ve, ok := err.(validatorv10.ValidationErrors); ok {
		for _, fe := range ve {
			out[fe.Field()] = "failed on the '" + fe.Tag() + "' rule"
		}
	}
	return out
}
