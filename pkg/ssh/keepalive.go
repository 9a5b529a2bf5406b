package ssh

import (
	"time"

	"golang.org/x/crypto/ssh"
)

const keepAliveRequest = "keepalive@openssh.com"

// StartKeepAlive 定期发送心跳，直到 stop 被关闭或心跳失败
// 心跳失败时关闭连接，正在进行的 Session 会随之返回错误
func StartKeepAlive(client *ssh.Client, interval time.Duration, stop <-chan struct{}, fallback func(err error)) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
			}
			if _, _, err := client.SendRequest(keepAliveRequest, true, nil); err != nil {
				client.Close()
				if fallback != nil {
					fallback(err)
				}
				return
			}
		}
	}()
}
