package utils

import "github.com/gin-gonic/gin"

func Success(c *gin.Context, data gin.H) {
	SuccessStatus(c, 200, data)
}

func SuccessStatus(c *gin.Context, code int, data gin.H) {
	c.JSON(code, gin.H{
		"success": true,
		"data":    data,
	})
}

func Error(c *gin.Context, code int, msg string) {
	c.JSON(code, gin.H{
		"success": false,
		"error":   msg,
	})
}
