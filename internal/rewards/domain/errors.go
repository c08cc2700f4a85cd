package domain

import "errors"

var (
	ErrInvalidRewardAmount = errors.New("invalid_reward_amount")
	ErrNotRewardPayment    = errors.New("not_a_reward_payment")
	ErrBalanceNotFound     = errors.New("reward_balance_not_found")
	ErrConfigNotFound      = errors.New("rewards_config_not_found")
)
