package kafka

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"

	"EquiSaddles/config"

	"github.com/IBM/sarama"
)

func NewSaramaConfig(cfg *config.KafkaConfig) (*sarama.Config, error) {
	sc := sarama.NewConfig()
	sc.Version = sarama.V2_8_0_0
	sc.ClientID = "equisaddles-chat"

	// 生产者配置
	sc.Producer.RequiredAcks = sarama.WaitForAll
	sc.Producer.Retry.Max = 3
	sc.Producer.Return.Successes = true
	// keyed by session id so one conversation stays on one partition
	sc.Producer.Partitioner = sarama.NewHashPartitioner
	sc.Producer.Interceptors = []sarama.ProducerInterceptor{NewChatEventInterceptor()}

	// 消费者配置
	sc.Consumer.Return.Errors = true
	sc.Consumer.Offsets.Initial = sarama.OffsetNewest
	sc.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}

	// 认证配置
	if cfg.Username != "" && cfg.Password != "" {
		if err := configureSASL(sc, cfg); err != nil {
			return nil, err
		}
	}

	if cfg.UseTLS {
		tlsConfig, err := createTLSConfig(cfg.CertFile, cfg.KeyFile, cfg.CAFile)
		if err != nil {
			return nil, err
		}
		sc.Net.TLS.Enable = true
		sc.Net.TLS.Config = tlsConfig
	}
	return sc, nil
}

// 创建TLS配置
func createTLSConfig(certFile, keyFile, caFile string) (*tls.Config, error) {
	tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}

	if caFile != "" {
		caCert, err := os.ReadFile(caFile)
		if err != nil {
			return nil, fmt.Errorf("read kafka ca file: %w", err)
		}
		caCertPool := x509.NewCertPool()
		if !caCertPool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("kafka ca file %s contains no certificates", caFile)
		}
		tlsConfig.RootCAs = caCertPool
	}

	// 加载客户端证书
	if certFile != "" && keyFile != "" {
		cert, err := tls.LoadX509KeyPair(certFile, keyFile)
		if err != nil {
			return nil, fmt.Errorf("load kafka client certificate: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}
	return tlsConfig, nil
}
