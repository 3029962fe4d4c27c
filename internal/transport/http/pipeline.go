package httptransport

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Stage is one step of a request pipeline. Run returns nil to continue or a
// terminal Result to answer the request immediately.
type Stage struct {
	Name string
	Run  func(c *gin.Context) *Result
}

// Handler produces the response once every stage has passed.
type Handler func(c *gin.Context) *Result

// Dispatch runs stages in order, stopping at the first terminal Result, and
// then calls handler.
func Dispatch(handler Handler, stages ...Stage) gin.HandlerFunc {
	return func(c *gin.Context) {
		for _, stage := range stages {
			if res := stage.Run(c); res != nil {
				c.Set(ctxTerminalStage, stage.Name)
				res.write(c)
				c.Abort()
				return
			}
		}
		res := handler(c)
		if res == nil {
			res = Fail(http.StatusInternalServerError, MsgInternalError)
		}
		res.write(c)
	}
}

// TerminalStage returns the name of the stage that answered the request, if any.
func TerminalStage(c *gin.Context) string {
	return c.GetString(ctxTerminalStage)
}
