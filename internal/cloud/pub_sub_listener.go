// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// This file implements a Pub/Sub listener that hands every message to a
// Chain of Responsibility command. The service uses it to hear about records
// written to the store by other tools, so the record cache can be dropped
// before its TTL runs out.
//
// Structs:
//   - PubSubListener: Pulls messages from one subscription and executes a command per message.
//
// Functions:
//   - NewPubSubListener: Constructor for the listener.
//   - SetCommand: Attaches the command after construction.
//   - Listen: Starts receiving in a background goroutine.

package cloud

import (
	"context"
	"errors"
	"log/slog"

	"cloud.google.com/go/pubsub"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/jaycherian/gcp-go-video-insights/internal/core/cor"
)

// PubSubListener receives messages from a subscription and runs a command for each.
type PubSubListener struct {
	client       *pubsub.Client       // The client for interacting with the Pub/Sub service.
	subscription *pubsub.Subscription // The specific subscription this listener will pull messages from.
	command      cor.Command          // The command to execute for each message received.
}

// NewPubSubListener creates a listener for subscriptionID. The command may be
// nil and attached later with SetCommand.
func NewPubSubListener(
	pubsubClient *pubsub.Client,
	subscriptionID string,
	command cor.Command,
) (cmd *PubSubListener, err error) {
	if pubsubClient == nil {
		return nil, errors.New("pubsub client is required")
	}
	cmd = &PubSubListener{
		client:       pubsubClient,
		subscription: pubsubClient.Subscription(subscriptionID),
		command:      command,
	}
	return cmd, nil
}

// SetCommand attaches command unless one is already set.
func (m *PubSubListener) SetCommand(command cor.Command) {
	if m.command == nil {
		m.command = command
	}
}

// Handle runs the command for one message body and reports whether the
// message should be acknowledged.
func (m *PubSubListener) Handle(ctx context.Context, data []byte) bool {
	chainCtx := cor.NewBaseContextWith(ctx)
	chainCtx.Add(cor.CtxIn, string(data))

	if !m.command.IsExecutable(chainCtx) {
		slog.WarnContext(ctx, "listener command not executable, dropping message", "command", m.command.GetName())
		return true
	}
	m.command.Execute(chainCtx)

	if chainCtx.HasErrors() {
		for name, e := range chainCtx.GetErrors() {
			slog.ErrorContext(ctx, "error executing listener command", "command", name, "error", e)
		}
		return false
	}
	return true
}

// Listen starts receiving in the background until ctx is cancelled. Failed
// messages are nacked so Pub/Sub redelivers them per the subscription policy.
func (m *PubSubListener) Listen(ctx context.Context) {
	if m.command == nil {
		slog.WarnContext(ctx, "listener has no command, not listening", "subscription", m.subscription.ID())
		return
	}
	slog.InfoContext(ctx, "listening", "subscription", m.subscription.ID())

	go func() {
		tracer := otel.Tracer("message-listener")

		err := m.subscription.Receive(ctx, func(msgCtx context.Context, msg *pubsub.Message) {
			spanCtx, span := tracer.Start(msgCtx, "receive-message")
			defer span.End()
			span.SetAttributes(
				attribute.String("subscription", m.subscription.ID()),
				attribute.String("message.id", msg.ID),
			)

			if m.Handle(spanCtx, msg.Data) {
				span.SetStatus(codes.Ok, "success")
				msg.Ack()
				return
			}
			span.SetStatus(codes.Error, "failed")
			msg.Nack()
		})

		if err != nil && !errors.Is(err, context.Canceled) {
			slog.ErrorContext(ctx, "error receiving messages", "subscription", m.subscription.ID(), "error", err)
		}
	}()
}
