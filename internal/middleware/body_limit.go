package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

// ErrPostTooLarge is recorded on the context when the declared body size
// exceeds the limit.
var ErrPostTooLarge = errors.New("request body exceeds the maximum post size")

const postTooLargeKey = "post_too_large"

// BodyLimit caps request bodies at limit bytes. Requests that declare a
// larger Content-Length are flagged and reach the handler with an empty
// body, so the page can show its own maxpost error. Bodies without a
// declared length are cut off by http.MaxBytesReader.
func BodyLimit(limit int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limit <= 0 {
			c.Next()
			return
		}
		if c.Request.ContentLength > limit {
			c.Set(postTooLargeKey, true)
			_ = c.Error(ErrPostTooLarge)
			c.Request.Body = http.NoBody
			c.Request.ContentLength = 0
		} else {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		}
		c.Next()
	}
}

// PostTooLarge reports whether BodyLimit rejected the body, or err is the
// error returned while reading a body past the limit.
func PostTooLarge(c *gin.Context, err error) bool {
	if c.GetBool(postTooLargeKey) {
		return true
	}
	var mbe *http.MaxBytesError
	return err != nil && errors.As(err, &mbe)
}
