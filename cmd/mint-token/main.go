package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/nice20235/slippers/internal/auth"
	"github.com/nice20235/slippers/internal/config"
)

// 运维工具：给联调/排障签发一个 JWT。线上 token 由外部身份服务签发。
func main() {
	userID := flag.Int64("user", 1, "user id")
	username := flag.String("name", "tester", "username")
	isAdmin := flag.Bool("admin", false, "mint an admin token")
	flag.Parse()

	cfg, err := config.Load("configs")
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	token, err := auth.GenerateToken(&cfg.JWT, *userID, *username, *isAdmin)
	if err != nil {
		log.Fatalf("failed to mint token: %v", err)
	}
	fmt.Println(token)
}
