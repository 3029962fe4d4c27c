package main

import (
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"github.com/spf13/cobra"

	"moodify-server-go/client"
)

func chatCmd(opts *globalOptions) *cobra.Command {
	var system, model string

	cmd := &cobra.Command{
		Use:   "chat <prompt>",
		Short: "Send a chat completion through the gateway",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			session, err := opts.protected(cmd.Context())
			if err != nil {
				return err
			}

			var messages []openai.ChatCompletionMessage
			if system != "" {
				messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
			}
			messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: strings.Join(args, " ")})

			resp, err := client.NewAPI(session).ChatCompletion(cmd.Context(), openai.ChatCompletionRequest{
				Model:    model,
				Messages: messages,
			})
			if err != nil {
				return describeFailure(err, opts.lang)
			}
			if len(resp.Choices) == 0 {
				return fmt.Errorf("%s", client.Message(client.KeyGeneric, opts.lang))
			}
			fmt.Println(resp.Choices[0].Message.Content)
			return nil
		},
	}

	cmd.Flags().StringVar(&system, "system", "", "Optional system prompt")
	cmd.Flags().StringVar(&model, "model", openai.GPT4oMini, "Model name")

	return cmd
}

func imageCmd(opts *globalOptions) *cobra.Command {
	var size, model string
	var n int

	cmd := &cobra.Command{
		Use:   "image <prompt>",
		Short: "Generate images through the gateway",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			session, err := opts.protected(cmd.Context())
			if err != nil {
				return err
			}

			resp, err := client.NewAPI(session).GenerateImage(cmd.Context(), openai.ImageRequest{
				Prompt:         strings.Join(args, " "),
				Model:          model,
				N:              n,
				Size:           size,
				ResponseFormat: openai.CreateImageResponseFormatURL,
			})
			if err != nil {
				return describeFailure(err, opts.lang)
			}
			for _, img := range resp.Data {
				fmt.Println(img.URL)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&size, "size", openai.CreateImageSize1024x1024, "Image size")
	cmd.Flags().StringVar(&model, "model", openai.CreateImageModelDallE3, "Image model")
	cmd.Flags().IntVarP(&n, "count", "n", 1, "Number of images")

	return cmd
}
