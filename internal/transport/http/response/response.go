package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type MessageBody struct {
	Message string `json:"message"`
}

type ErrorBody struct {
	Error string `json:"error"`
}

// OK writes data as the bare JSON body.
func OK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, data)
}

func Message(c *gin.Context, message string) {
	c.JSON(http.StatusOK, MessageBody{Message: message})
}

func Error(c *gin.Context, httpStatus int, message string) {
	c.JSON(httpStatus, ErrorBody{Error: message})
}
