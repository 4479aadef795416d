// Command examples submits a chat task to a running hedera-agentd and waits
// for the reply.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"hedera-agent-kit/sdk/go/hederaagent"
)

func main() {
	var (
		baseURL = flag.String("url", "http://localhost:8080", "hedera-agentd address")
		message = flag.String("message", "What is my HBAR balance?", "message sent to the agent")
		account = flag.String("account", "", "wallet account id; enables returnBytes mode")
	)
	flag.Parse()

	client, err := hederaagent.NewClient(*baseURL, nil)
	if err != nil {
		log.Fatal(err)
	}
	client.SetAccessToken(os.Getenv("HEDERA_AGENT_TOKEN"))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	submission := hederaagent.TaskSubmission{Message: *message}
	if *account != "" {
		submission.AccountID = *account
		submission.Mode = hederaagent.ModeReturnBytes
	}
	task, err := client.SubmitTask(ctx, submission)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("submitted task %s (session %s)\n", task.ID, task.SessionID)

	task, err = client.WaitForTask(ctx, task.ID, time.Second)
	if err != nil {
		log.Fatal(err)
	}
	if task.Status == "failed" {
		log.Fatalf("task failed: %s", task.LastError)
	}
	fmt.Println(task.Result.Reply)
	for _, tx := range task.Result.Transactions {
		fmt.Printf("sign %s from %s: %d bytes\n", tx.TransactionID, tx.Tool, len(tx.Bytes))
	}
}
