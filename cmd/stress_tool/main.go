package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"creator_ledger/internal/pkg/config"
	"creator_ledger/pkg/utils"
)

var httpClient *http.Client

func init() {
	// 优化 HTTP Client 配置
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.MaxIdleConns = 2000
	t.MaxIdleConnsPerHost = 2000
	t.MaxConnsPerHost = 2000
	httpClient = &http.Client{
		Transport: t,
		Timeout:   10 * time.Second,
	}
}

type envelope struct {
	Code int             `json:"code"`
	Data json.RawMessage `json:"data"`
}

// statusError 非 200 响应
type statusError struct {
	status int
	body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("status %d: %s", e.status, e.body)
}

func main() {
	var (
		mode    = flag.String("mode", "like", "like: 双击点赞; tip: 并发打赏")
		baseURL = flag.String("url", "http://localhost:8080", "server address")
		postID  = flag.Uint64("post", 1, "post to like")
		users   = flag.Int("users", 1000, "concurrent users, ids 1..n")
		taps    = flag.Int("taps", 3, "requests per user")
		convID  = flag.Uint64("conv", 1, "conversation to tip in")
		sender  = flag.Uint64("sender", 1, "tipping user")
		amount  = flag.Int64("amount", 10, "tip amount")
	)
	flag.Parse()

	// 令牌与服务端使用同一份 JWT 配置签发
	config.LoadConfig()

	switch *mode {
	case "like":
		likeStorm(*baseURL, *postID, *users, *taps)
	case "tip":
		tipStorm(*baseURL, *convID, *sender, *amount, *users**taps)
	default:
		log.Fatalf("unknown mode %q", *mode)
	}
}

func token(uid uint64) string {
	tok, _, err := utils.GenerateToken(uid, utils.RoleUser)
	if err != nil {
		log.Fatalf("generate token: %v", err)
	}
	return tok
}

func report(duration time.Duration, total int, ok, failed int64) {
	fmt.Println("--------------------------------------------------")
	fmt.Printf("压测结束，耗时: %v\n", duration)
	fmt.Printf("总请求数: %d\n", total)
	fmt.Printf("QPS: %.2f\n", float64(total)/duration.Seconds())
	fmt.Printf("成功: %d 失败: %d\n", ok, failed)
}

// likeStorm 每个用户连续切换点赞，结束后核对计数与客户端观察到的状态
func likeStorm(baseURL string, postID uint64, users, taps int) {
	tokens := make([]string, users+1)
	for uid := 1; uid <= users; uid++ {
		tokens[uid] = token(uint64(uid))
	}

	fmt.Printf("开始压测：%d 个用户对帖子 %d 各切换点赞 %d 次...\n", users, postID, taps)

	var wg sync.WaitGroup
	var ok, failed int64
	liked := make([]bool, users+1)
	start := time.Now()

	for uid := 1; uid <= users; uid++ {
		wg.Add(1)
		go func(uid int) {
			defer wg.Done()
			for i := 0; i < taps; i++ {
				state, err := toggleLike(baseURL, postID, tokens[uid])
				if err != nil {
					atomic.AddInt64(&failed, 1)
					continue
				}
				atomic.AddInt64(&ok, 1)
				liked[uid] = state
			}
		}(uid)
	}
	wg.Wait()
	duration := time.Since(start)

	var expected int64
	for _, l := range liked {
		if l {
			expected++
		}
	}
	count, err := likeCount(baseURL, postID, tokens[1])
	if err != nil {
		log.Fatalf("read post: %v", err)
	}

	report(duration, users*taps, ok, failed)
	fmt.Printf("点赞计数: %d (客户端观察: %d)\n", count, expected)
	fmt.Println("--------------------------------------------------")
	if failed == 0 && count != expected {
		log.Fatalf("like counter drifted: stored %d, expected %d", count, expected)
	}
}

// tipStorm 同一用户并发打赏，余额不足的请求应被拒绝且余额不会为负
func tipStorm(baseURL string, convID, sender uint64, amount int64, total int) {
	tok := token(sender)
	before, err := balance(baseURL, tok)
	if err != nil {
		log.Fatalf("read wallet: %v", err)
	}

	fmt.Printf("开始压测：用户 %d 在会话 %d 并发打赏 %d 次，每次 %d，初始余额 %d...\n", sender, convID, total, amount, before)

	var wg sync.WaitGroup
	var ok, rejected, failed int64
	start := time.Now()

	for i := 0; i < total; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := sendTip(baseURL, convID, amount, tok)
			var se *statusError
			switch {
			case err == nil:
				atomic.AddInt64(&ok, 1)
			case errors.As(err, &se) && se.status == http.StatusPaymentRequired:
				atomic.AddInt64(&rejected, 1)
			default:
				atomic.AddInt64(&failed, 1)
			}
		}()
	}
	wg.Wait()
	duration := time.Since(start)

	after, err := balance(baseURL, tok)
	if err != nil {
		log.Fatalf("read wallet: %v", err)
	}

	report(duration, total, ok, failed)
	fmt.Printf("余额不足被拒: %d\n", rejected)
	fmt.Printf("余额: %d -> %d (应扣 %d)\n", before, after, ok*amount)
	fmt.Println("--------------------------------------------------")
	if after < 0 {
		log.Fatalf("balance went negative: %d", after)
	}
	if failed == 0 && before-after != ok*amount {
		log.Fatalf("balance drifted: debited %d, expected %d", before-after, ok*amount)
	}
}

func do(req *http.Request, token string, dest interface{}) error {
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return &statusError{status: resp.StatusCode, body: string(body)}
	}
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return err
	}
	if env.Code != 0 {
		return fmt.Errorf("code %d", env.Code)
	}
	if dest == nil {
		return nil
	}
	return json.Unmarshal(env.Data, dest)
}

func toggleLike(baseURL string, postID uint64, token string) (bool, error) {
	req, err := http.NewRequest(http.MethodPost, fmt.Sprintf("%s/posts/%d/like", baseURL, postID), nil)
	if err != nil {
		return false, err
	}
	var out struct {
		Liked bool `json:"liked"`
	}
	err = do(req, token, &out)
	return out.Liked, err
}

func likeCount(baseURL string, postID uint64, token string) (int64, error) {
	req, err := http.NewRequest(http.MethodGet, fmt.Sprintf("%s/posts/%d", baseURL, postID), nil)
	if err != nil {
		return 0, err
	}
	var out struct {
		LikeCount int64 `json:"likeCount"`
	}
	err = do(req, token, &out)
	return out.LikeCount, err
}

func sendTip(baseURL string, convID uint64, amount int64, token string) error {
	body, _ := json.Marshal(map[string]int64{"amount": amount})
	req, err := http.NewRequest(http.MethodPost, fmt.Sprintf("%s/conversations/%d/tips", baseURL, convID), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return do(req, token, nil)
}

func balance(baseURL, token string) (int64, error) {
	req, err := http.NewRequest(http.MethodGet, baseURL+"/wallet", nil)
	if err != nil {
		return 0, err
	}
	var out struct {
		Balance int64 `json:"balance"`
	}
	err = do(req, token, &out)
	return out.Balance, err
}
