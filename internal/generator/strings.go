package generator

import (
	"fmt"
	"math/rand/v2"
	"strings"
)

var (
	firstNames = []string{"Peter", "Paul", "Luke", "John", "Saul", "Vicky", "Kate", "Julie", "Sarah", "Deiter", "Walter"}
	lastNames  = []string{"Shultz", "Abrams", "Spencer", "White", "Bartels", "Walton", "Smith", "Jones", "Noris"}
	usStates   = []string{"AZ", "CA", "ID", "OR", "WA", "WY"}
	usCities   = []string{"Phoenix", "Los Angeles", "San Francisco", "Boise", "Portland", "Bend", "Redmond", "Seattle", "Kent", "Cheyenne"}
	channels   = []string{"Google", "Facebook", "Baidu", "Apple"}
)

const (
	hotChannelRatio = 2
	letters         = "abcdefghijklmnopqrstuvwxyz"
)

func nextString(rng *rand.Rand, maxLength int) string {
	n := 3 + rng.IntN(maxLength-2)
	var b strings.Builder
	b.Grow(n)
	for i := 0; i < n; i++ {
		if rng.IntN(13) == 0 {
			b.WriteByte(' ')
			continue
		}
		b.WriteByte(letters[rng.IntN(len(letters))])
	}
	return strings.TrimSpace(b.String())
}

func exactString(rng *rand.Rand, length int) string {
	var b strings.Builder
	b.Grow(length)
	for i := 0; i < length; i++ {
		b.WriteByte(letters[rng.IntN(len(letters))])
	}
	return b.String()
}

func creditCard(rng *rand.Rand) string {
	return fmt.Sprintf("%04d %04d %04d %04d", rng.IntN(10000), rng.IntN(10000), rng.IntN(10000), rng.IntN(10000))
}

// nextExtra pads an event towards desired bytes, within +-20%.
func nextExtra(rng *rand.Rand, current, desired int) string {
	if current >= desired {
		return ""
	}
	avg := desired - current
	delta := max(avg/5, 1)
	return exactString(rng, avg-delta+rng.IntN(2*delta+1))
}

func nextChannel(rng *rand.Rand) (string, string) {
	if rng.IntN(hotChannelRatio) > 0 {
		ch := channels[rng.IntN(len(channels))]
		return ch, "https://www.nexmark.com/" + strings.ToLower(ch) + "/item.htm?query=1"
	}
	id := rng.IntN(10000)
	return fmt.Sprintf("channel-%d", id), fmt.Sprintf("https://www.nexmark.com/%s/%s/%s/item.htm?query=1&channel_id=%d",
		exactString(rng, 5), exactString(rng, 5), exactString(rng, 5), id)
}
