/*
 * MIT License
 *
 * Copyright (c) 2026 Nguyen Thanh Phuong
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 */

package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"nhooyr.io/websocket"
)

const (
	wsQueueSize    = 4
	wsWriteTimeout = 5 * time.Second
)

// handleWebSocket streams the current snapshot, then every published one.
// Clients only receive; anything they send is discarded.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.logger.Warn("Websocket accept failed", "error", err)
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	ctx := conn.CloseRead(r.Context())

	updates, cancel := s.store.Subscribe(wsQueueSize)
	defer cancel()

	logger := s.logger.With("request_id", r.Context().Value(contextKeyRequestID))
	logger.Debug("Websocket client connected")

	if data, err := s.store.Resolve(s.now()); err == nil {
		if err := writeMessage(ctx, conn, data); err != nil {
			logger.Debug("Websocket write failed", "error", err)
			return
		}
	}

	for {
		select {
		case <-ctx.Done():
			logger.Debug("Websocket client disconnected")
			return
		case snapshot, ok := <-updates:
			if !ok {
				return
			}
			data, err := json.Marshal(snapshot)
			if err != nil {
				logger.Error("Failed to marshal websocket payload", "error", err)
				continue
			}
			if err := writeMessage(ctx, conn, data); err != nil {
				if websocket.CloseStatus(err) != websocket.StatusNormalClosure {
					logger.Debug("Websocket write failed", "error", err)
				}
				return
			}
		}
	}
}

func writeMessage(ctx context.Context, conn *websocket.Conn, data []byte) error {
	writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}
