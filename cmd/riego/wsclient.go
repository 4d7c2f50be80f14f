package main

import (
	"log"
	"net/http"

	"github.com/gorilla/websocket"
	"gitlab.com/lologarithm/riego/rnet"
)

var upgrader = websocket.Upgrader{} // use default options

func (srv *server) clientStreamHandler(w http.ResponseWriter, r *http.Request) {
	access := srv.auth(w, r)
	if access == AccessNone {
		return
	}
	c := clientStream(w, r, access, srv)
	if c == nil {
		return
	}
	st := srv.c.Status()
	srv.clientslock.Lock()
	c.WriteJSON(rnet.Msg{Status: &st})
	srv.clientStreams = append(srv.clientStreams, c)
	srv.clientslock.Unlock()
}

func clientStream(w http.ResponseWriter, r *http.Request, access int, srv *server) *websocket.Conn {
	c, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Print("upgrade failure:", err)
		return nil
	}

	// websocket reader closure.
	// Handles requests from websocket client.
	go func() {
		for {
			_, b, err := c.ReadMessage()
			if err != nil {
				log.Println("Disconnecting user: ", err)
				break
			}
			// Readers can't water
			if access != AccessWrite {
				continue
			}
			cmd, err := rnet.ParseCommand(b)
			if err != nil {
				log.Printf("[Error] Bad websocket command: %s", err)
				continue
			}
			if err := srv.c.submit(cmd); err != nil {
				log.Printf("[Error] Websocket command refused: %s", err)
			}
		}
		c.Close()
	}()
	return c
}
