package kafka

import (
	"fmt"
	"strings"

	"EquiSaddles/config"

	"github.com/IBM/sarama"
	"github.com/xdg-go/scram"
)

// configureSASL enables PLAIN (default) or SCRAM authentication.
func configureSASL(sc *sarama.Config, cfg *config.KafkaConfig) error {
	sc.Net.SASL.Enable = true
	sc.Net.SASL.User = cfg.Username
	sc.Net.SASL.Password = cfg.Password
	sc.Net.SASL.Handshake = true

	switch strings.ToUpper(cfg.SASLMechanism) {
	case "", "PLAIN":
		sc.Net.SASL.Mechanism = sarama.SASLTypePlaintext
	case "SCRAM-SHA-256":
		sc.Net.SASL.Mechanism = sarama.SASLTypeSCRAMSHA256
		sc.Net.SASL.SCRAMClientGeneratorFunc = func() sarama.SCRAMClient {
			return &XDGSCRAMClient{HashGeneratorFcn: SHA256}
		}
	case "SCRAM-SHA-512":
		sc.Net.SASL.Mechanism = sarama.SASLTypeSCRAMSHA512
		sc.Net.SASL.SCRAMClientGeneratorFunc = func() sarama.SCRAMClient {
			return &XDGSCRAMClient{HashGeneratorFcn: SHA512}
		}
	default:
		return fmt.Errorf("unsupported kafka sasl mechanism %q", cfg.SASLMechanism)
	}
	return nil
}

// SCRAM客户端实现
var (
	SHA256 scram.HashGeneratorFcn = scram.SHA256
	SHA512 scram.HashGeneratorFcn = scram.SHA512
)

type XDGSCRAMClient struct {
	*scram.Client
	*scram.ClientConversation
	scram.HashGeneratorFcn
}

func (x *XDGSCRAMClient) Begin(userName, password, authzID string) (err error) {
	x.Client, err = x.HashGeneratorFcn.NewClient(userName, password, authzID)
	if err != nil {
		return err
	}
	x.ClientConversation = x.Client.NewConversation()
	return nil
}

func (x *XDGSCRAMClient) Step(challenge string) (response string, err error) {
	return x.ClientConversation.Step(challenge)
}

func (x *XDGSCRAMClient) Done() bool {
	return x.ClientConversation.Done()
}
